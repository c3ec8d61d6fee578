package pricing

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/text/currency"
)

// Quote is the price response for one visitor.
type Quote struct {
	Currency       string  `json:"currency"`
	Annual         Amount  `json:"annual"`
	AnnualPerMonth Amount  `json:"annual_per_month"`
	Monthly        Amount  `json:"monthly"`
	Display        Display `json:"display"`
}

// CurrencyFor returns the currency for a two-letter country code. Lookup is
// case-sensitive; empty or unmapped codes yield DefaultCurrency.
func CurrencyFor(country string) string {
	if code, ok := countryCurrency[country]; ok {
		return code
	}
	return DefaultCurrency
}

// PriceFor returns the price for a currency code, falling back to the
// DefaultCurrency price when the code has no entry.
func PriceFor(code string) Price {
	if e, ok := prices[code]; ok {
		return e.price
	}
	return prices[DefaultCurrency].price
}

// Resolve builds the quote for a country code. It accepts any string and
// never fails.
func Resolve(country string) Quote {
	code, mapped := countryCurrency[country]
	e, priced := prices[code]
	if !mapped || !priced {
		return quote(DefaultCurrency, prices[DefaultCurrency].price, fallbackDisplay)
	}
	return quote(code, e.price, e.display)
}

func quote(code string, p Price, d Display) Quote {
	return Quote{
		Currency:       code,
		Annual:         p.Annual,
		AnnualPerMonth: p.AnnualPerMonth,
		Monthly:        p.Monthly,
		Display:        d,
	}
}

// Fallback returns the quote served to visitors with no country mapping.
func Fallback() Quote {
	return Resolve("")
}

// Currencies returns the priced currency codes in sorted order.
func Currencies() []string {
	return slices.Sorted(maps.Keys(prices))
}

// Countries returns the mapped country codes in sorted order.
func Countries() []string {
	return slices.Sorted(maps.Keys(countryCurrency))
}

// Validate checks the static tables: the default currency is priced, every
// currency reachable from the country table is priced, and every priced code
// is a known ISO 4217 currency.
func Validate() error {
	var errs []error
	if _, ok := prices[DefaultCurrency]; !ok {
		errs = append(errs, fmt.Errorf("default currency %s has no price", DefaultCurrency))
	}
	for _, country := range Countries() {
		code := countryCurrency[country]
		if _, ok := prices[code]; !ok {
			errs = append(errs, fmt.Errorf("country %s maps to unpriced currency %s", country, code))
		}
	}
	for _, code := range Currencies() {
		if _, err := currency.ParseISO(code); err != nil {
			errs = append(errs, fmt.Errorf("currency %s: %w", code, err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot is a JSON view of the tables for runtime inspection.
type Snapshot struct {
	DefaultCurrency string            `json:"default_currency"`
	Prices          map[string]Quote  `json:"prices"`
	Countries       map[string]string `json:"countries"`
	Fallback        Quote             `json:"fallback"`
}

// Tables returns a copy of the static tables.
func Tables() Snapshot {
	s := Snapshot{
		DefaultCurrency: DefaultCurrency,
		Prices:          make(map[string]Quote, len(prices)),
		Countries:       maps.Clone(countryCurrency),
		Fallback:        Fallback(),
	}
	for code, e := range prices {
		s.Prices[code] = quote(code, e.price, e.display)
	}
	return s
}
