package orders

import (
	"context"
	"errors"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/pkg/circuitbreaker"
	"github.com/google/uuid"
)

type Ledger interface {
	PlaceOrder(ctx context.Context, checkoutID, ownerID string, draft domain.OrderDraft) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	MarkCartCleared(ctx context.Context, checkoutID string) error
}

// Guarded runs ledger calls through a circuit breaker. Duplicate checkouts and
// missing orders are answers and do not count as failures.
type Guarded struct {
	next    Ledger
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next Ledger, cfg circuitbreaker.Config) *Guarded {
	cfg.Ignore = func(err error) bool {
		return errors.Is(err, ErrDuplicateCheckout) || errors.Is(err, ErrOrderNotFound)
	}
	return &Guarded{next: next, breaker: circuitbreaker.New(cfg)}
}

func (g *Guarded) PlaceOrder(ctx context.Context, checkoutID, ownerID string, draft domain.OrderDraft) (*domain.Order, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (*domain.Order, error) {
		return g.next.PlaceOrder(ctx, checkoutID, ownerID, draft)
	})
}

func (g *Guarded) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (*domain.Order, error) {
		return g.next.GetOrderByID(ctx, id)
	})
}

func (g *Guarded) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (*domain.Order, error) {
		return g.next.GetOrderByCheckoutID(ctx, checkoutID)
	})
}

func (g *Guarded) ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]*domain.Order, error) {
		return g.next.ListOrdersByOwner(ctx, ownerID)
	})
}

func (g *Guarded) MarkCartCleared(ctx context.Context, checkoutID string) error {
	_, err := circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.MarkCartCleared(ctx, checkoutID)
	})
	return err
}
