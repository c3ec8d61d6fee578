// Package main fetches a quote from the price service and prints the
// storefront strings, the same two values the buy-now page fills in.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emeditor/get-price/internal/client"
)

func main() {
	url := flag.String("url", client.DefaultURL, "price service URL")
	country := flag.String("country", "", "ask for this country's quote (honoured only when calling the service directly)")
	asJSON := flag.Bool("json", false, "print the whole quote as JSON")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, os.Stdout, client.New(*url), *country, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "getprice: %v\n", err)
		if errors.Is(err, client.ErrNoPrice) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, c *client.Client, country string, asJSON bool) error {
	q, err := c.GetFor(ctx, country)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}

	_, err = fmt.Fprintf(out, "annual: %s\nannual per month: %s\n", q.Display.Annual, q.Display.AnnualPerMonth)
	return err
}
