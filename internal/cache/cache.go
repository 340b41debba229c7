package cache

import (
	"context"
	"errors"

	"github.com/fjod/photopixel/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	// SetIfAbsent fills the cache only when no entry exists, so a miss-fill
	// never overwrites a newer write-through value.
	SetIfAbsent(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, ref domain.CartRef) error
}

var ErrCacheMiss = errors.New("cache miss")
