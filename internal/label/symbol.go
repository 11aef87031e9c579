package label

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
)

// ErrEmptyBarcode is returned when no barcode content is provided.
var ErrEmptyBarcode = errors.New("barcode content is empty")

// DefaultDPI is the resolution of typical thermal label printers.
const DefaultDPI = 203

// EncodeBarcode encodes content as CODE128 and scales the symbol to the given
// physical size at dpi. The symbol carries no human-readable text. When the
// requested width is narrower than one pixel per module the module width
// wins.
func EncodeBarcode(content string, widthMM, heightMM float64, dpi int) (barcode.Barcode, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyBarcode
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	bc, err := code128.Encode(content)
	if err != nil {
		return nil, fmt.Errorf("encode code128: %w", err)
	}
	w := max(toPixels(widthMM, dpi), bc.Bounds().Dx())
	h := max(toPixels(heightMM, dpi), 1)
	scaled, err := barcode.Scale(bc, w, h)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	return scaled, nil
}

// WriteBarcodePNG renders the barcode row of a label as PNG.
func WriteBarcodePNG(w io.Writer, content string, row Row, dpi int) error {
	bc, err := EncodeBarcode(content, CanvasWidthMM, row.SymbolHeightMM(), dpi)
	if err != nil {
		return err
	}
	return png.Encode(w, bc)
}

func toPixels(mm float64, dpi int) int {
	return int(math.Round(mm / 25.4 * float64(dpi)))
}
