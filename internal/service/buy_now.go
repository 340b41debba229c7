package service

import (
	"context"

	"github.com/fjod/photopixel/internal/domain"
)

// BuyNow manages the checkout-scoped overlay cart of an owner. It is stored
// apart from the persistent cart and never touches it.
type BuyNow struct {
	carts *CartService
}

func NewBuyNow(carts *CartService) *BuyNow {
	return &BuyNow{carts: carts}
}

// Start opens a fresh overlay holding only product, superseding any open one.
func (b *BuyNow) Start(ctx context.Context, ownerID string, product *domain.Product, quantity int) (*domain.Cart, error) {
	cart, err := b.carts.replace(ctx, domain.BuyNowRef(ownerID), product, quantity)
	if err != nil {
		return nil, err
	}
	b.carts.metrics.CartMutation("start", domain.CartKindBuyNow.String())
	return cart, nil
}

// Add accumulates another product on the overlay.
func (b *BuyNow) Add(ctx context.Context, ownerID string, product *domain.Product, quantity int) (*domain.Cart, error) {
	return b.carts.AddItem(ctx, domain.BuyNowRef(ownerID), product, quantity)
}

func (b *BuyNow) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	return b.carts.GetCart(ctx, domain.BuyNowRef(ownerID))
}

// Cancel discards the overlay. Cancelling twice is not an error.
func (b *BuyNow) Cancel(ctx context.Context, ownerID string) error {
	return b.carts.Delete(ctx, domain.BuyNowRef(ownerID))
}
