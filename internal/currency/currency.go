// Package currency validates ISO-4217 codes and renders amounts for invoices
// and auto-replies.
package currency

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Default is used when a user has not chosen a display currency.
const Default = "USD"

var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"KRW": "₩",
	"NGN": "₦",
	"BRL": "R$",
	"MXN": "MX$",
}

var printer = message.NewPrinter(language.English)

// Normalize upper-cases and validates an ISO-4217 code.
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	return unit.String(), nil
}

// Validate reports whether code is a known ISO-4217 currency.
func Validate(code string) error {
	_, err := Normalize(code)
	return err
}

// Scale returns the number of minor-unit digits for code (2 when unknown).
func Scale(code string) int {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Round rounds amount half away from zero to the currency's minor units.
func Round(amount float64, code string) float64 {
	return RoundTo(amount, Scale(code))
}

// RoundTo rounds amount half away from zero to the given decimal places.
func RoundTo(amount float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(amount*p) / p
}

// Format renders amount with grouping and the currency's minor units,
// e.g. "$1,234.50", "¥1,235" or "CHF 10.00".
func Format(amount float64, code string) string {
	code = strings.ToUpper(code)
	scale := Scale(code)
	rounded := RoundTo(amount, scale)

	sign := ""
	if rounded < 0 {
		sign = "-"
		rounded = -rounded
	}
	digits := printer.Sprint(number.Decimal(rounded, number.Scale(scale)))

	if sym, ok := symbols[code]; ok {
		return sign + sym + digits
	}
	return sign + code + " " + digits
}
