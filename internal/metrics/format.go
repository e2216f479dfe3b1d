package metrics

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatCurrency renders a dollar amount with thousands separators.
func FormatCurrency(value float64) string {
	return printer.Sprintf("$%.2f", value)
}

// FormatPercent renders a percentage with two decimals.
func FormatPercent(value float64) string {
	return printer.Sprintf("%.2f%%", value)
}

// FormatRatio renders a unit-economics ratio like "3.50x".
func FormatRatio(value float64) string {
	return printer.Sprintf("%.2fx", value)
}
