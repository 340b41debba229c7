// Package pricing turns cart lines into subtotal, shipping fee and total.
// Everything here is pure and safe for concurrent use.
package pricing

import (
	"github.com/fjod/photopixel/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(50000)
	DefaultFlatShippingFee       = decimal.NewFromInt(999)
)

const DefaultCurrency = "USD"

type Calculator struct {
	freeShippingThreshold decimal.Decimal
	flatShippingFee       decimal.Decimal
	currency              string
}

type Breakdown struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	ItemCount   int
	Currency    string
}

func NewCalculator(freeShippingThreshold, flatShippingFee decimal.Decimal, currency string) *Calculator {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Calculator{
		freeShippingThreshold: freeShippingThreshold,
		flatShippingFee:       flatShippingFee,
		currency:              currency,
	}
}

func Default() *Calculator {
	return NewCalculator(DefaultFreeShippingThreshold, DefaultFlatShippingFee, DefaultCurrency)
}

func (c *Calculator) Currency() string {
	return c.currency
}

func (c *Calculator) Subtotal(lines []domain.CartLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	return subtotal
}

// ShippingFee is free strictly above the threshold. A zero subtotal is not above
// it, so an empty cart is quoted the flat fee.
func (c *Calculator) ShippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(c.freeShippingThreshold) {
		return decimal.Zero
	}
	return c.flatShippingFee
}

func (c *Calculator) Total(lines []domain.CartLine) decimal.Decimal {
	subtotal := c.Subtotal(lines)
	return subtotal.Add(c.ShippingFee(subtotal))
}

func (c *Calculator) Quote(lines []domain.CartLine) Breakdown {
	subtotal := c.Subtotal(lines)
	shipping := c.ShippingFee(subtotal)
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return Breakdown{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Total:       subtotal.Add(shipping),
		ItemCount:   count,
		Currency:    c.currency,
	}
}
