// Package money holds the single rounding and currency display rule shared by
// every output path.
package money

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders v as whole dollars with thousands separators, e.g. "$4,200,000".
func Format(v float64) string {
	return printer.Sprintf("$%.0f", Round0(v))
}

// FormatMillions renders v as "$X.XM".
func FormatMillions(v float64) string {
	return printer.Sprintf("$%.1fM", Round1(v/1_000_000))
}

// FormatInt renders n with thousands separators.
func FormatInt(n int) string {
	return printer.Sprintf("%d", n)
}

// Round0 rounds half away from zero to a whole number.
func Round0(v float64) float64 { return math.Round(v) }

// Round1 rounds to one decimal place.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// RoundThousand rounds to the nearest thousand.
func RoundThousand(v float64) float64 { return math.Round(v/1000) * 1000 }
