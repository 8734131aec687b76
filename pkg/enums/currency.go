package enums

import "strings"

// Currency is an ISO 4217 code. The marketplace settles in euros only.
type Currency string

const CurrencyEUR Currency = "EUR"

var validCurrencies = []Currency{CurrencyEUR}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return member(c, validCurrencies)
}

// Lower is the form payment gateways expect ("eur").
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

// ParseCurrency accepts codes in any case.
func ParseCurrency(value string) (Currency, error) {
	return parse("currency", strings.ToUpper(strings.TrimSpace(value)), validCurrencies)
}
