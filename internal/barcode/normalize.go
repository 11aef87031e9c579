// Package barcode repairs scanner input that was typed through a mismatched
// keyboard layout.
package barcode

import "strings"

// Normalizer maps characters produced by a layout mismatch back to the
// characters the scanner actually transmitted. Target characters are never
// sources, which keeps normalisation idempotent.
type Normalizer struct {
	// SwapYZ maps "Y" to "Z" for terminals configured with a QWERTZ layout.
	SwapYZ bool
}

var (
	baseReplacer = strings.NewReplacer("ü", "-", "ö", "0")
	yzReplacer   = strings.NewReplacer("ü", "-", "ö", "0", "Y", "Z")
)

// Normalize applies the configured character mapping to raw.
func (n Normalizer) Normalize(raw string) string {
	if n.SwapYZ {
		return yzReplacer.Replace(raw)
	}
	return baseReplacer.Replace(raw)
}

// Normalize applies the default mapping.
func Normalize(raw string) string {
	return Normalizer{}.Normalize(raw)
}
