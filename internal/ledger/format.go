package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders the magnitude of d for display, e.g. "Rs. 300" or
// "USD 12.50". Whole amounts print without decimals.
func FormatAmount(d decimal.Decimal, currency string) string {
	d = d.Abs()
	var n string
	if d.Equal(d.Truncate(0)) {
		n = d.Truncate(0).String()
	} else {
		n = d.StringFixed(2)
	}

	switch c := strings.ToUpper(strings.TrimSpace(currency)); c {
	case "", "RS":
		return "Rs. " + n
	default:
		return c + " " + n
	}
}
