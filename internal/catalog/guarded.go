package catalog

import (
	"context"
	"errors"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/pkg/circuitbreaker"
)

type Reader interface {
	ListProducts(ctx context.Context, category string) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Guarded runs catalog reads through a circuit breaker. Unknown products are
// answers and do not count as failures.
type Guarded struct {
	next    Reader
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next Reader, cfg circuitbreaker.Config) *Guarded {
	cfg.Ignore = func(err error) bool { return errors.Is(err, domain.ErrNotFound) }
	return &Guarded{next: next, breaker: circuitbreaker.New(cfg)}
}

func (g *Guarded) ListProducts(ctx context.Context, category string) ([]*domain.Product, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) ([]*domain.Product, error) {
		return g.next.ListProducts(ctx, category)
	})
}

func (g *Guarded) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (*domain.Product, error) {
		return g.next.GetProduct(ctx, id)
	})
}
