package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when an edited price component is out of range.
var ErrInvalidInput = errors.New("invalid price input")

// Allowed markup multiplier range (exclusive lower bound).
var (
	MinMultiplier = decimal.Zero
	MaxMultiplier = decimal.NewFromInt(100)
)

const multiplierPlaces = 4

// Field identifies the price component currently being edited. Exactly one
// field is authoritative at a time; its dependents are recomputed from it.
type Field int

const (
	FieldNone Field = iota
	FieldGross
	FieldNet
	FieldCost
	FieldMultiplier
	FieldVAT
)

func (f Field) String() string {
	switch f {
	case FieldGross:
		return "gross"
	case FieldNet:
		return "net"
	case FieldCost:
		return "cost"
	case FieldMultiplier:
		return "multiplier"
	case FieldVAT:
		return "vat"
	default:
		return "none"
	}
}

// ParseField maps the wire name of a field to its Field value.
func ParseField(name string) (Field, error) {
	switch name {
	case "gross":
		return FieldGross, nil
	case "net":
		return FieldNet, nil
	case "cost":
		return FieldCost, nil
	case "multiplier":
		return FieldMultiplier, nil
	case "vat":
		return FieldVAT, nil
	}
	return FieldNone, fmt.Errorf("unknown price field %q: %w", name, ErrInvalidInput)
}

// Prices is the full set of interdependent price components of an item.
type Prices struct {
	Cost       Money           `json:"cost"`
	Multiplier decimal.Decimal `json:"multiplier"`
	VATPercent decimal.Decimal `json:"vatPercent"`
	Net        Money           `json:"net"`
	Gross      Money           `json:"gross"`
}

// Reconcile applies an edit of a single field to p and recomputes only the
// fields that depend on it. Invalid edits return ErrInvalidInput together
// with the unchanged prices.
func Reconcile(p Prices, field Field, value decimal.Decimal) (Prices, error) {
	out := p
	switch field {
	case FieldGross:
		if value.IsNegative() {
			return p, fmt.Errorf("gross must not be negative: %w", ErrInvalidInput)
		}
		out.Gross = Round1(value)
		out.Net = NetFromGross(out.Gross, out.VATPercent)
		out.Multiplier = multiplierFor(out.Net, out.Cost, out.Multiplier)
	case FieldNet:
		if value.IsNegative() {
			return p, fmt.Errorf("net must not be negative: %w", ErrInvalidInput)
		}
		out.Net = Round1(value)
		out.Gross = GrossFromNet(out.Net, out.VATPercent)
		out.Multiplier = multiplierFor(out.Net, out.Cost, out.Multiplier)
	case FieldCost:
		if value.IsNegative() {
			return p, fmt.Errorf("cost must not be negative: %w", ErrInvalidInput)
		}
		out.Cost = Round1(value)
		out.Multiplier = multiplierFor(out.Net, out.Cost, out.Multiplier)
	case FieldMultiplier:
		if !value.GreaterThan(MinMultiplier) || value.GreaterThan(MaxMultiplier) {
			return p, fmt.Errorf("multiplier %s out of range: %w", value, ErrInvalidInput)
		}
		out.Multiplier = value
		out.Net = Round1(Dec(out.Cost).Mul(value))
		out.Gross = GrossFromNet(out.Net, out.VATPercent)
	case FieldVAT:
		out.VATPercent = ClampPercent(value)
		out.Gross = GrossFromNet(out.Net, out.VATPercent)
	default:
		return p, fmt.Errorf("no field selected: %w", ErrInvalidInput)
	}
	return out, nil
}

func multiplierFor(net, cost Money, current decimal.Decimal) decimal.Decimal {
	if cost <= 0 {
		return current
	}
	return Dec(net).Div(Dec(cost)).Round(multiplierPlaces)
}

// Reconciler tracks an item's prices while a user edits them, keeping a
// single authoritative field so recalculation never feeds back into itself.
type Reconciler struct {
	prices  Prices
	editing Field
}

// NewReconciler starts reconciliation from the provided prices.
func NewReconciler(p Prices) *Reconciler {
	return &Reconciler{prices: p}
}

// NewReconcilerFromCost derives net and gross from cost, multiplier and VAT.
func NewReconcilerFromCost(cost Money, multiplier, vatPercent decimal.Decimal) *Reconciler {
	net := Round1(Dec(cost).Mul(multiplier))
	return &Reconciler{prices: Prices{
		Cost:       cost,
		Multiplier: multiplier,
		VATPercent: ClampPercent(vatPercent),
		Net:        net,
		Gross:      SellingPrice(cost, multiplier, ClampPercent(vatPercent)),
	}}
}

// Edit makes field authoritative and applies value to it.
func (r *Reconciler) Edit(field Field, value decimal.Decimal) (Prices, error) {
	next, err := Reconcile(r.prices, field, value)
	if err != nil {
		return r.prices, err
	}
	r.editing = field
	r.prices = next
	return next, nil
}

// Release clears the authoritative field, e.g. when the input loses focus.
func (r *Reconciler) Release() {
	r.editing = FieldNone
}

// Editing reports which field is currently authoritative.
func (r *Reconciler) Editing() Field {
	return r.editing
}

// Prices returns the current price components.
func (r *Reconciler) Prices() Prices {
	return r.prices
}
