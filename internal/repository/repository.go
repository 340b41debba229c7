package repository

import (
	"context"
	"errors"

	"github.com/fjod/photopixel/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// CartRepository stores one cart per (owner, kind).
// UpsertCart is optimistic: a cart with Version 0 is inserted, any other version
// must match the stored one. On success the cart's Version, ID and timestamps
// are updated in place.
type CartRepository interface {
	GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	DeleteCart(ctx context.Context, ref domain.CartRef) error
}
