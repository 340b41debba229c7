package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartKind separates the long-lived cart of an owner from the checkout-scoped buy-now cart.
type CartKind string

const (
	CartKindPersistent CartKind = "persistent"
	CartKindBuyNow     CartKind = "buy_now"
)

func (k CartKind) Valid() bool {
	return k == CartKindPersistent || k == CartKindBuyNow
}

func (k CartKind) String() string {
	return string(k)
}

// CartRef identifies one cart. An owner has at most one cart per kind.
type CartRef struct {
	OwnerID string
	Kind    CartKind
}

func PersistentRef(ownerID string) CartRef {
	return CartRef{OwnerID: ownerID, Kind: CartKindPersistent}
}

func BuyNowRef(ownerID string) CartRef {
	return CartRef{OwnerID: ownerID, Kind: CartKindBuyNow}
}

// String is used as lock, cache and singleflight key.
func (r CartRef) String() string {
	return string(r.Kind) + ":" + r.OwnerID
}

type Cart struct {
	ID        string     `json:"id,omitempty"`
	OwnerID   string     `json:"owner_id"`
	Kind      CartKind   `json:"kind"`
	Lines     []CartLine `json:"lines"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartLine holds a quantity and the unit price captured when the line was added.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	AddedAt   time.Time       `json:"added_at"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NewCart returns an empty, not yet persisted cart.
func NewCart(ref CartRef, now time.Time) *Cart {
	return &Cart{
		OwnerID:   ref.OwnerID,
		Kind:      ref.Kind,
		Lines:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) Ref() CartRef {
	return CartRef{OwnerID: c.OwnerID, Kind: c.Kind}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the total number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Quantity returns the quantity of productID, 0 when the cart has no such line.
func (c *Cart) Quantity(productID string) int {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i].Quantity
	}
	return 0
}

func (c *Cart) HasLine(productID string) bool {
	return c.indexOf(productID) >= 0
}

// Increment adds delta units of productID. A new line takes unitPrice; an
// existing line keeps its original price snapshot. Returns the new quantity.
// Callers guarantee delta > 0.
func (c *Cart) Increment(productID string, delta int, unitPrice decimal.Decimal, now time.Time) int {
	if i := c.indexOf(productID); i >= 0 {
		c.Lines[i].Quantity += delta
		return c.Lines[i].Quantity
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID: productID,
		Quantity:  delta,
		UnitPrice: unitPrice,
		AddedAt:   now,
	})
	return delta
}

// SetQuantity overwrites the quantity of an existing line; quantity 0 removes
// the line. Returns false when the cart has no line for productID.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.removeAt(i)
		return true
	}
	c.Lines[i].Quantity = quantity
	return true
}

// Remove deletes the line for productID and reports whether one existed.
func (c *Cart) Remove(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.removeAt(i)
	return true
}

// Reset empties the cart but keeps its identity.
func (c *Cart) Reset() {
	c.Lines = []CartLine{}
}

// Deduct takes ordered quantities off the matching lines and drops lines that
// reach zero. Units beyond what the line holds are ignored. Reports whether
// the cart changed.
func (c *Cart) Deduct(ordered map[string]int) bool {
	changed := false
	for productID, qty := range ordered {
		i := c.indexOf(productID)
		if i < 0 || qty <= 0 {
			continue
		}
		changed = true
		if c.Lines[i].Quantity <= qty {
			c.removeAt(i)
			continue
		}
		c.Lines[i].Quantity -= qty
	}
	return changed
}

// Clone returns a deep copy so stores never share line slices with callers.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Lines = make([]CartLine, len(c.Lines))
	copy(cp.Lines, c.Lines)
	return &cp
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
}
