// Package pricing holds the static country→currency and currency→price
// tables and resolves a visitor's country code to a price quote.
//
// All tables are built once at package initialization and never mutated, so
// every function here is safe for unsynchronized concurrent use.
package pricing

// DefaultCurrency is the fallback currency for unmapped countries and for
// currencies missing from the price table.
const DefaultCurrency = "USD"

// Price is the set of amounts quoted for one currency.
type Price struct {
	Annual         Amount `json:"annual"`
	AnnualPerMonth Amount `json:"annual_per_month"`
	Monthly        Amount `json:"monthly"`
}

// Display carries the same amounts pre-formatted for the storefront, with
// currency symbol and locale grouping.
type Display struct {
	Annual         string `json:"annual"`
	AnnualPerMonth string `json:"annual_per_month"`
	Monthly        string `json:"monthly"`
}

type entry struct {
	price   Price
	display Display
}

func priced(annual, perMonth, monthly string, display Display) entry {
	return entry{
		price: Price{
			Annual:         mustAmount(annual),
			AnnualPerMonth: mustAmount(perMonth),
			Monthly:        mustAmount(monthly),
		},
		display: display,
	}
}

var prices = map[string]entry{
	"USD": priced("60", "5", "6", Display{"$60", "$5", "$6"}),
	"JPY": priced("9000", "750", "900", Display{"9,000円", "750円", "900円"}),
	"GBP": priced("45", "3.75", "4.50", Display{"£45", "£3.75", "£4.50"}),
	"EUR": priced("50", "4.17", "5", Display{"€50", "€4.17", "€5"}),
	"BRL": priced("300", "25", "30", Display{"R$300", "R$25", "R$30"}),
	"CNY": priced("400", "33", "40", Display{"400元", "33元", "40元"}),
	"AUD": priced("90", "7.50", "9", Display{"A$90", "A$7.50", "A$9"}),
	"KRW": priced("80000", "6667", "8000", Display{"₩80,000", "₩6,667", "₩8,000"}),
	"CAD": priced("80", "6.67", "8", Display{"C$80", "C$6.67", "C$8"}),
	"TWD": priced("1600", "133", "160", Display{"NT$1,600", "NT$133", "NT$160"}),
}

// fallbackDisplay is shown to visitors whose country has no mapping. The
// code suffix keeps the amount unambiguous outside the US.
var fallbackDisplay = Display{"60 USD", "5 USD", "6 USD"}

// countryCurrency maps CF-IPCountry values to currency codes.
var countryCurrency = map[string]string{
	"US": "USD",
	"JP": "JPY",
	"GB": "GBP",

	"DE": "EUR", // Germany
	"FR": "EUR", // France
	"IT": "EUR", // Italy
	"ES": "EUR", // Spain
	"NL": "EUR", // Netherlands
	"BE": "EUR", // Belgium
	"AT": "EUR", // Austria
	"IE": "EUR", // Ireland
	"PT": "EUR", // Portugal
	"FI": "EUR", // Finland
	"GR": "EUR", // Greece
	"SK": "EUR", // Slovakia
	"SI": "EUR", // Slovenia
	"EE": "EUR", // Estonia
	"LV": "EUR", // Latvia
	"LT": "EUR", // Lithuania
	"LU": "EUR", // Luxembourg
	"CY": "EUR", // Cyprus
	"MT": "EUR", // Malta

	"BR": "BRL",
	"CN": "CNY",
	"AU": "AUD",
	"KR": "KRW",
	"CA": "CAD",
	"TW": "TWD",
}
