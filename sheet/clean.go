package sheet

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Locale describes how numbers are written in the source spreadsheet.
type Locale struct {
	CurrencySymbol string `toml:"currency_symbol" json:"currency_symbol"`
	ThousandsSep   string `toml:"thousands_separator" json:"thousands_separator"`
	DecimalSep     string `toml:"decimal_separator" json:"decimal_separator"`
}

// BrazilianLocale is "R$ 1.234,56".
func BrazilianLocale() Locale {
	return Locale{CurrencySymbol: "R$", ThousandsSep: ".", DecimalSep: ","}
}

// USLocale is "$1,234.56".
func USLocale() Locale {
	return Locale{CurrencySymbol: "$", ThousandsSep: ",", DecimalSep: "."}
}

// ParseNumber normalizes a currency-formatted string and parses it.
//
// Steps, in order: strip the currency symbol, drop thousands separators,
// turn the decimal separator into '.', trim whitespace, parse. Anything that
// still fails to parse is Null. It never returns an error.
func ParseNumber(raw string, loc Locale) Cell {
	s := raw
	if loc.CurrencySymbol != "" {
		s = strings.ReplaceAll(s, loc.CurrencySymbol, "")
	}
	if loc.ThousandsSep != "" {
		s = strings.ReplaceAll(s, loc.ThousandsSep, "")
	}
	if loc.DecimalSep != "" && loc.DecimalSep != "." {
		s = strings.ReplaceAll(s, loc.DecimalSep, ".")
	}
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "-":
		return Null
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Null
	}
	return Cell{Decimal: d, Valid: true}
}
