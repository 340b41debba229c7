package pricing

import (
	"math/rand"
	"testing"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func line(id string, qty int, price int64) domain.CartLine {
	return domain.CartLine{ProductID: id, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}
}

func TestQuote_AboveThresholdShipsFree(t *testing.T) {
	q := Default().Quote([]domain.CartLine{line("P1", 1, 60000)})

	assert.True(t, decimal.NewFromInt(60000).Equal(q.Subtotal))
	assert.True(t, q.ShippingFee.IsZero())
	assert.True(t, decimal.NewFromInt(60000).Equal(q.Total))
	assert.Equal(t, 1, q.ItemCount)
	assert.Equal(t, "USD", q.Currency)
}

func TestQuote_BelowThresholdPaysFlatFee(t *testing.T) {
	q := Default().Quote([]domain.CartLine{line("P2", 1, 500)})

	assert.True(t, decimal.NewFromInt(500).Equal(q.Subtotal))
	assert.True(t, decimal.NewFromInt(999).Equal(q.ShippingFee))
	assert.True(t, decimal.NewFromInt(1499).Equal(q.Total))
}

func TestShippingFee_ThresholdIsExclusive(t *testing.T) {
	c := Default()

	assert.True(t, decimal.NewFromInt(999).Equal(c.ShippingFee(decimal.NewFromInt(50000))))
	assert.True(t, c.ShippingFee(decimal.RequireFromString("50000.01")).IsZero())
}

func TestQuote_EmptyLinesChargesFlatFee(t *testing.T) {
	c := Default()

	assert.True(t, c.Subtotal(nil).IsZero())
	assert.True(t, decimal.NewFromInt(999).Equal(c.ShippingFee(c.Subtotal(nil))))
	assert.True(t, decimal.NewFromInt(999).Equal(c.Total([]domain.CartLine{})))
}

func TestSubtotalAndTotal_RandomLines(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := Default()

	for i := 0; i < 500; i++ {
		n := rng.Intn(6)
		lines := make([]domain.CartLine, 0, n)
		var want int64
		for j := 0; j < n; j++ {
			qty := 1 + rng.Intn(5)
			price := int64(rng.Intn(30000))
			lines = append(lines, line("P", qty, price))
			want += int64(qty) * price
		}

		subtotal := c.Subtotal(lines)
		assert.True(t, decimal.NewFromInt(want).Equal(subtotal))

		fee := decimal.NewFromInt(999)
		if want > 50000 {
			fee = decimal.Zero
		}
		assert.True(t, fee.Equal(c.ShippingFee(subtotal)))
		assert.True(t, subtotal.Add(c.ShippingFee(subtotal)).Equal(c.Total(lines)))
	}
}

func TestNewCalculator_CustomValues(t *testing.T) {
	c := NewCalculator(decimal.NewFromInt(100), decimal.RequireFromString("4.99"), "")

	assert.Equal(t, DefaultCurrency, c.Currency())
	q := c.Quote([]domain.CartLine{line("P1", 2, 40)})
	assert.True(t, decimal.RequireFromString("84.99").Equal(q.Total))
}
