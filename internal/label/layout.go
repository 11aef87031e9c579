// Package label computes the physical layout of shelf price labels and
// encodes their CODE128 barcode symbol.
package label

import (
	"math"
	"unicode/utf8"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// Canvas size of a label in millimetres.
const (
	CanvasWidthMM  = 33.0
	CanvasHeightMM = 25.0
)

// Row heights in millimetres. The barcode row reserves BarcodeTopPaddingMM
// above the symbol.
const (
	NameRowMM           = 5.3
	SKURowMM            = 3.0
	PriceRowMM          = 8.3
	BarcodeRowMM        = 8.875
	BarcodeTopPaddingMM = 1.5
)

// Font sizes in millimetres.
const (
	NameFontMM      = 3.5
	NameFontSmallMM = 2.5
	nameShortLimit  = 25
)

// Field names a label row.
type Field string

const (
	FieldName    Field = "name"
	FieldSKU     Field = "sku"
	FieldPrice   Field = "price"
	FieldBarcode Field = "barcode"
)

// Fields selects which rows are printed.
type Fields struct {
	Name    bool `json:"name"`
	SKU     bool `json:"sku"`
	Price   bool `json:"price"`
	Barcode bool `json:"barcode"`
}

// AllFields enables every row.
var AllFields = Fields{Name: true, SKU: true, Price: true, Barcode: true}

// Content is the data printed on a label.
type Content struct {
	Name     string        `json:"name"`
	SKU      string        `json:"sku"`
	Barcode  string        `json:"barcode"`
	Price    pricing.Money `json:"price"`
	Currency string        `json:"currency"`
}

// Row is a single laid out label row.
type Row struct {
	Field        Field   `json:"field"`
	TopMM        float64 `json:"topMm"`
	HeightMM     float64 `json:"heightMm"`
	TopPaddingMM float64 `json:"topPaddingMm,omitempty"`
	FontSizeMM   float64 `json:"fontSizeMm,omitempty"`
	Text         string  `json:"text,omitempty"`
}

// Layout is the computed label.
type Layout struct {
	WidthMM  float64 `json:"widthMm"`
	HeightMM float64 `json:"heightMm"`
	Rows     []Row   `json:"rows"`
}

// Compute lays out the enabled rows top to bottom in the order name, sku,
// price, barcode. Disabled rows are omitted, so the label height is the sum
// of the enabled rows. The barcode row never extends past the canvas.
func Compute(fields Fields, content Content, f *Formatter) Layout {
	if f == nil {
		f = DefaultFormatter()
	}
	out := Layout{WidthMM: CanvasWidthMM}
	top := 0.0
	add := func(r Row) {
		r.TopMM = mm(top)
		r.HeightMM = mm(r.HeightMM)
		out.Rows = append(out.Rows, r)
		top += r.HeightMM
	}
	if fields.Name {
		add(Row{Field: FieldName, HeightMM: NameRowMM, FontSizeMM: NameFontSize(content.Name), Text: content.Name})
	}
	if fields.SKU {
		add(Row{Field: FieldSKU, HeightMM: SKURowMM, Text: content.SKU})
	}
	if fields.Price {
		text := f.Price(content.Price, content.Currency)
		add(Row{Field: FieldPrice, HeightMM: PriceRowMM, FontSizeMM: PriceFontSize(text), Text: text})
	}
	if fields.Barcode {
		h := math.Min(BarcodeRowMM, CanvasHeightMM-top)
		add(Row{Field: FieldBarcode, HeightMM: h, TopPaddingMM: BarcodeTopPaddingMM, Text: content.Barcode})
	}
	out.HeightMM = mm(top)
	return out
}

// NameFontSize picks the name font from the display length.
func NameFontSize(name string) float64 {
	if utf8.RuneCountInString(name) <= nameShortLimit {
		return NameFontMM
	}
	return NameFontSmallMM
}

// PriceFontSize picks the price font from the rendered price length.
func PriceFontSize(text string) float64 {
	n := utf8.RuneCountInString(text)
	switch {
	case n <= 10:
		return 6
	case n <= 12:
		return 5.5
	case n <= 15:
		return 5
	case n <= 20:
		return 4.5
	default:
		return 4
	}
}

// SymbolHeightMM is the printable barcode height once padding is removed.
func (r Row) SymbolHeightMM() float64 {
	return math.Max(0, mm(r.HeightMM-r.TopPaddingMM))
}

func mm(v float64) float64 {
	return math.Round(v*1000) / 1000
}
