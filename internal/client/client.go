// Package client fetches quotes from a running price service, the way the
// storefront pages do.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/emeditor/get-price/internal/pricing"
)

// DefaultURL is the public price endpoint.
const DefaultURL = "https://emeditor-get-price.emeditor.com/"

// ErrNoPrice is returned when the service answers but the answer is not a
// quote: a non-2xx status, a body that is not JSON, or JSON that is not an
// object.
var ErrNoPrice = errors.New("no price available")

// maxBody bounds how much of a response is read.
const maxBody = 64 << 10

// Client requests quotes from the price service.
type Client struct {
	url  string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for url, or DefaultURL when url is empty.
func New(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches the quote for the caller's location. Transport failures are
// returned wrapped; every malformed answer is reported as ErrNoPrice.
func (c *Client) Get(ctx context.Context) (*pricing.Quote, error) {
	return c.get(ctx, "")
}

// GetFor fetches the quote the service would give a visitor from country.
// The country header is only honoured when the service is reached directly
// rather than through the edge, which overwrites it.
func (c *Client) GetFor(ctx context.Context, country string) (*pricing.Quote, error) {
	return c.get(ctx, country)
}

func (c *Client) get(ctx context.Context, country string) (*pricing.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if country != "" {
		req.Header.Set("CF-IPCountry", country)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrNoPrice, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading price response: %w", err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrNoPrice)
	}

	var q pricing.Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	return &q, nil
}
