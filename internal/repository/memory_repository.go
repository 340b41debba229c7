package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/photopixel/internal/domain"
)

// MemoryRepository keeps carts in process. Used by local runs without MongoDB and by tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
	seq   int64
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts: make(map[string]*domain.Cart),
		now:   time.Now,
	}
}

func (r *MemoryRepository) GetCart(_ context.Context, ref domain.CartRef) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[ref.String()]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryRepository) UpsertCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	key := cart.Ref().String()
	stored, exists := r.carts[key]

	switch {
	case cart.Version == 0 && exists:
		return ErrVersionConflict
	case cart.Version != 0 && (!exists || stored.Version != cart.Version):
		return ErrVersionConflict
	}

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if !exists {
		r.seq++
		cart.ID = fmt.Sprintf("mem-%d", r.seq)
	}
	cart.Version++
	cart.UpdatedAt = now
	r.carts[key] = cart.Clone()
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, ref domain.CartRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ref.String()
	if _, ok := r.carts[key]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, key)
	return nil
}
