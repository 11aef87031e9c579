package label

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Formatter renders prices with locale-aware digit grouping.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for a BCP 47 locale such as "hu" or "en".
// Unknown locales fall back to Hungarian.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.Hungarian
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// DefaultFormatter formats for Hungarian.
func DefaultFormatter() *Formatter {
	return &Formatter{printer: message.NewPrinter(language.Hungarian)}
}

// Price renders amount followed by the currency label, when present.
func (f *Formatter) Price(amount pricing.Money, currency string) string {
	currency = strings.TrimSpace(currency)
	if currency == "" {
		return f.printer.Sprintf("%d", amount)
	}
	return f.printer.Sprintf("%d %s", amount, currency)
}
