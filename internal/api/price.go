// Package api serves the price quote endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/emeditor/get-price/internal/apierror"
	"github.com/emeditor/get-price/internal/cors"
	"github.com/emeditor/get-price/internal/metrics"
	"github.com/emeditor/get-price/internal/pricing"
)

// CountryHeader carries the visitor's ISO 3166-1 alpha-2 country code, set
// by the edge in front of the service.
const CountryHeader = "CF-IPCountry"

const allowedMethods = "GET, OPTIONS"

// response is a pre-serialized quote.
type response struct {
	body     []byte
	length   string
	currency string
	fallback bool
}

// PriceHandler answers GET with the visitor's quote and OPTIONS with a CORS
// preflight. Every other method gets 405. The request path is ignored.
type PriceHandler struct {
	gate      atomic.Pointer[cors.Gate]
	byCountry map[string]response
	fallback  response
	logger    *slog.Logger
}

// NewPriceHandler serializes every quote up front so that identical requests
// receive byte-identical bodies.
func NewPriceHandler(gate *cors.Gate, logger *slog.Logger) (*PriceHandler, error) {
	h := &PriceHandler{
		byCountry: make(map[string]response),
		logger:    logger,
	}
	h.gate.Store(gate)

	fallback, err := encode(pricing.Fallback(), true)
	if err != nil {
		return nil, fmt.Errorf("encoding fallback quote: %w", err)
	}
	h.fallback = fallback

	for _, country := range pricing.Countries() {
		resp, err := encode(pricing.Resolve(country), false)
		if err != nil {
			return nil, fmt.Errorf("encoding quote for %s: %w", country, err)
		}
		h.byCountry[country] = resp
	}

	return h, nil
}

func encode(q pricing.Quote, fallback bool) (response, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return response{}, err
	}
	return response{
		body:     body,
		length:   strconv.Itoa(len(body)),
		currency: q.Currency,
		fallback: fallback,
	}, nil
}

// SetGate replaces the origin allow-list. Requests already in flight keep
// the gate they started with.
func (h *PriceHandler) SetGate(g *cors.Gate) {
	h.gate.Store(g)
}

// Gate returns the allow-list in effect.
func (h *PriceHandler) Gate() *cors.Gate {
	return h.gate.Load()
}

func (h *PriceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gate := h.gate.Load()
	origin := r.Header.Get("Origin")

	switch r.Method {
	case http.MethodOptions:
		allowed := gate.SetPreflight(w.Header(), origin)
		recordCORS("preflight", origin, allowed)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		allowed := gate.SetResponse(w.Header(), origin)
		recordCORS("actual", origin, allowed)
		h.writeQuote(w, r.Header.Get(CountryHeader))

	default:
		allowed := gate.SetResponse(w.Header(), origin)
		recordCORS("actual", origin, allowed)
		w.Header().Set("Allow", allowedMethods)
		apierror.WriteJSON(w, r, http.StatusMethodNotAllowed, apierror.MethodNotAllowed, apierror.MsgMethodNotAllowed)
	}
}

func (h *PriceHandler) writeQuote(w http.ResponseWriter, country string) {
	resp, ok := h.byCountry[country]
	if !ok {
		resp = h.fallback
	}

	metrics.QuotesTotal.WithLabelValues(resp.currency, strconv.FormatBool(resp.fallback)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", resp.length)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.body); err != nil {
		h.logger.Debug("writing quote failed", "error", err, "country", country)
	}
}

func recordCORS(kind, origin string, allowed bool) {
	result := "denied"
	switch {
	case origin == "":
		result = "absent"
	case allowed:
		result = "allowed"
	}
	metrics.CORSDecisions.WithLabelValues(kind, result).Inc()
}
