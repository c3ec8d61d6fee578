package pricing

import (
	"github.com/shopspring/decimal"
)

// Amount is an exact monetary value. It serializes as a bare JSON number
// with the decimal places of the literal it was parsed from, so 4.50 stays
// 4.50 and 4.17 is never emitted as 4.1699999.
type Amount struct {
	d decimal.Decimal
}

// mustAmount parses a literal table value. Only used for package-level data,
// where a malformed literal is a programming error.
func mustAmount(s string) Amount {
	return Amount{d: decimal.RequireFromString(s)}
}

// NewAmount parses s as an exact decimal amount.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{d: d}, nil
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Equal reports whether a and b represent the same value.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) String() string {
	if exp := a.d.Exponent(); exp < 0 {
		return a.d.StringFixed(-exp)
	}
	return a.d.String()
}

// MarshalJSON writes the amount unquoted.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both bare numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.d.UnmarshalJSON(b)
}
