package cart

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func productItem(id string, gross pricing.Money) Item {
	return Item{
		Identity:  Identity{Kind: "product", ProductID: id},
		Name:      "Item " + id,
		UnitGross: gross,
		UnitNet:   pricing.NetFromGross(gross, dec("27")),
		Currency:  "HUF",
		TaxRateID: "vat-27",
	}
}

func TestRescanIncrementsSingleLine(t *testing.T) {
	var c Cart
	item := productItem("p1", 1000)
	for i := 0; i < 7; i++ {
		id, err := c.AddOrIncrement(item)
		require.NoError(t, err)
		require.Equal(t, item.Identity, id)
	}
	require.Len(t, c.Lines, 1)
	require.True(t, c.Lines[0].Quantity.Equal(dec("7")))
}

func TestRescanRefreshesPrices(t *testing.T) {
	var c Cart
	_, err := c.AddOrIncrement(productItem("p1", 1000))
	require.NoError(t, err)
	_, err = c.AddOrIncrement(productItem("p1", 1200))
	require.NoError(t, err)
	line, ok := c.Line(Identity{Kind: "product", ProductID: "p1"})
	require.True(t, ok)
	require.Equal(t, pricing.Money(1200), line.UnitGross)
	require.True(t, line.Quantity.Equal(dec("2")))
}

func TestSameIDDifferentKindIsSeparateLine(t *testing.T) {
	var c Cart
	_, _ = c.AddOrIncrement(productItem("42", 1000))
	acc := productItem("42", 500)
	acc.Kind = "accessory"
	_, _ = c.AddOrIncrement(acc)
	require.Len(t, c.Lines, 2)
}

func TestAddOrIncrementRequiresIdentity(t *testing.T) {
	var c Cart
	_, err := c.AddOrIncrement(Item{Name: "nameless"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetQuantity(t *testing.T) {
	var c Cart
	id, _ := c.AddOrIncrement(productItem("p1", 1000))

	require.NoError(t, c.SetQuantity(id, dec("2.345"), false))
	line, _ := c.Line(id)
	require.True(t, line.Quantity.Equal(dec("2.35")), "got %s", line.Quantity)

	require.NoError(t, c.SetQuantity(id, dec("0"), true))
	line, ok := c.Line(id)
	require.True(t, ok)
	require.True(t, line.Quantity.IsZero())

	require.NoError(t, c.SetQuantity(id, dec("0.5"), false))
	line, _ = c.Line(id)
	require.True(t, line.Quantity.Equal(dec("0.5")))

	require.NoError(t, c.SetQuantity(id, dec("-1"), false))
	_, ok = c.Line(id)
	require.False(t, ok)

	require.ErrorIs(t, c.SetQuantity(id, dec("1"), false), ErrLineNotFound)
}

func TestMultiplyQuantity(t *testing.T) {
	var c Cart
	id, _ := c.AddOrIncrement(productItem("p1", 1000))
	require.NoError(t, c.SetQuantity(id, dec("3"), false))
	require.NoError(t, c.MultiplyQuantity(id, dec("0.333")))
	line, _ := c.Line(id)
	require.True(t, line.Quantity.Equal(dec("1")), "got %s", line.Quantity)

	require.NoError(t, c.MultiplyQuantity(id, dec("0")))
	require.Empty(t, c.Lines)
	require.ErrorIs(t, c.MultiplyQuantity(id, dec("2")), ErrLineNotFound)
}

func TestRemoveLine(t *testing.T) {
	var c Cart
	a, _ := c.AddOrIncrement(productItem("a", 100))
	b, _ := c.AddOrIncrement(productItem("b", 200))
	require.NoError(t, c.RemoveLine(a))
	require.Len(t, c.Lines, 1)
	require.Equal(t, b, c.Lines[0].Identity)
	require.ErrorIs(t, c.RemoveLine(a), ErrLineNotFound)
}

func TestLineDiscountModesAreExclusive(t *testing.T) {
	var c Cart
	id, _ := c.AddOrIncrement(productItem("p1", 1000))
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		if rng.Intn(2) == 0 {
			require.NoError(t, c.SetLineDiscountPercentage(id, decimal.NewFromInt(int64(rng.Intn(120)+1))))
		} else {
			require.NoError(t, c.SetLineDiscountFixedAmount(id, pricing.Money(rng.Intn(500)+1)))
		}
		line, _ := c.Line(id)
		pctSet := !line.DiscountPercent.IsZero()
		fixedSet := line.DiscountFixed != 0
		require.True(t, pctSet != fixedSet, "exactly one discount mode must be set")
	}
}

func TestLineDiscountClamping(t *testing.T) {
	var c Cart
	id, _ := c.AddOrIncrement(productItem("p1", 1000))
	require.NoError(t, c.SetLineDiscountPercentage(id, dec("140")))
	line, _ := c.Line(id)
	require.True(t, line.DiscountPercent.Equal(dec("100")))
	require.Equal(t, pricing.Money(0), LineSubtotal(line))

	require.NoError(t, c.SetLineDiscountFixedAmount(id, -50))
	line, _ = c.Line(id)
	require.Equal(t, pricing.Money(0), line.DiscountFixed)
	require.True(t, line.DiscountPercent.IsZero())
}

func TestLineSubtotal(t *testing.T) {
	line := Line{UnitGross: 999, Quantity: dec("3")}
	require.Equal(t, pricing.Money(2995), LineSubtotal(line))

	line.DiscountPercent = dec("10")
	require.Equal(t, pricing.Money(2695), LineSubtotal(line))

	line.DiscountPercent = decimal.Zero
	line.DiscountFixed = 150
	require.Equal(t, pricing.Money(2545), LineSubtotal(line))
}

func TestLineSubtotalIsMultipleOfFive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		line := Line{
			UnitGross: pricing.Money(rng.Intn(100000)),
			Quantity:  decimal.NewFromInt(int64(rng.Intn(1000) + 1)).Div(decimal.NewFromInt(100)),
		}
		switch rng.Intn(3) {
		case 0:
			line.DiscountPercent = decimal.NewFromInt(int64(rng.Intn(101)))
		case 1:
			line.DiscountFixed = pricing.Money(rng.Intn(300))
		}
		require.Zero(t, LineSubtotal(line)%5, "line %+v", line)
	}
}
