package report

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/attainment-dashboard/sheet"
)

// FormatAmount formats a value the way the source sheet writes it,
// e.g. 1234.5 -> "R$ 1.234,50" for the Brazilian locale.
func FormatAmount(d decimal.Decimal, loc sheet.Locale) string {
	s := FormatNumber(d, 2, loc)
	if loc.CurrencySymbol == "" {
		return s
	}
	if strings.HasPrefix(s, "-") {
		return "-" + loc.CurrencySymbol + " " + s[1:]
	}
	return loc.CurrencySymbol + " " + s
}

// FormatNumber rounds d to places and applies the locale separators.
func FormatNumber(d decimal.Decimal, places int32, loc sheet.Locale) string {
	s := d.StringFixed(places)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(loc.ThousandsSep)
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		sep := loc.DecimalSep
		if sep == "" {
			sep = "."
		}
		b.WriteString(sep)
		b.WriteString(frac)
	}
	return b.String()
}

// FormatPercent formats a percentage with one decimal, e.g. "45.0%".
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(1) + "%"
}
