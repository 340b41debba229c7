package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/photopixel/internal/cache"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/metrics"
	"github.com/fjod/photopixel/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxLineQuantity = 99
	defaultMaxRetries      = 3
	cacheWriteTimeout      = time.Second
)

// StockLedger is the read side of the catalog used to re-check stock when a
// quantity is overwritten.
type StockLedger interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type Options struct {
	EnforceStock    bool
	MaxLineQuantity int
	Stock           StockLedger
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		EnforceStock:    true,
		MaxLineQuantity: DefaultMaxLineQuantity,
	}
}

// CartService is the cart store. All mutations of one cart run under that
// cart's lock; carts of different owners or kinds never contend.
type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	stock   StockLedger
	locks   *keyedMutex
	sfg     singleflight.Group
	opts    Options
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewCartService(repo repository.CartRepository, cartCache cache.CartCache, opts Options) *CartService {
	if cartCache == nil {
		cartCache = nopCache{}
	}
	if opts.MaxLineQuantity <= 0 {
		opts.MaxLineQuantity = DefaultMaxLineQuantity
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &CartService{
		repo:    repo,
		cache:   cartCache,
		stock:   opts.Stock,
		locks:   newKeyedMutex(),
		opts:    opts,
		metrics: opts.Metrics,
		log:     log,
		now:     time.Now,
	}
}

// GetCart never fails for an owner without a stored cart; it returns an empty,
// unsaved cart instead.
func (s *CartService) GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(ref.String(), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, ref)
		if err == nil {
			s.metrics.CacheLookup("hit")
			return cart, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.CacheLookup("miss")
		} else {
			s.metrics.CacheLookup("error")
			logger.FromContext(ctx, s.log).Warn("cache get failed", "cart", ref.String(), "error", err)
		}

		// Read under the cart lock so a concurrent writer cannot be overtaken
		// by this miss-fill.
		unlock := s.locks.Lock(ref.String())
		defer unlock()

		cart, err = s.repo.GetCart(ctx, ref)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(ref, s.now().UTC()), nil
		}
		if err != nil {
			return nil, fmt.Errorf("get cart: %w", err)
		}

		s.fillCache(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart).Clone(), nil
}

// AddItem increments the line of product by quantity, creating the cart and the
// line as needed. A new line captures product.Price.
func (s *CartService) AddItem(ctx context.Context, ref domain.CartRef, product *domain.Product, quantity int) (*domain.Cart, error) {
	if err := validateAdd(product, quantity); err != nil {
		return nil, err
	}

	cart, err := s.mutate(ctx, ref, true, func(cart *domain.Cart) (bool, error) {
		if err := s.checkAdd(cart, product, quantity); err != nil {
			return false, err
		}
		cart.Increment(product.ID, quantity, product.Price, s.now().UTC())
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CartMutation("add", ref.Kind.String())
	return cart, nil
}

// UpdateQuantity overwrites the quantity of an existing line. Zero removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, ref domain.CartRef, productID string, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, domain.NewValidationError("quantity", "must not be negative")
	}
	if quantity > s.opts.MaxLineQuantity {
		return nil, domain.NewValidationError("quantity", fmt.Sprintf("must not exceed %d", s.opts.MaxLineQuantity))
	}

	cart, err := s.mutate(ctx, ref, false, func(cart *domain.Cart) (bool, error) {
		if !cart.HasLine(productID) {
			return false, &domain.NotFoundError{Resource: "cart line", ID: productID}
		}
		if quantity > 0 {
			if err := s.checkStock(ctx, productID, quantity); err != nil {
				return false, err
			}
		}
		cart.SetQuantity(productID, quantity)
		return true, nil
	})
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, &domain.NotFoundError{Resource: "cart line", ID: productID}
	}
	if err != nil {
		return nil, err
	}

	s.metrics.CartMutation("update", ref.Kind.String())
	return cart, nil
}

// RemoveItem is idempotent: a missing line or cart is not an error.
func (s *CartService) RemoveItem(ctx context.Context, ref domain.CartRef, productID string) (*domain.Cart, error) {
	cart, err := s.mutate(ctx, ref, false, func(cart *domain.Cart) (bool, error) {
		return cart.Remove(productID), nil
	})
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(ref, s.now().UTC()), nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.CartMutation("remove", ref.Kind.String())
	return cart, nil
}

// Clear empties the cart and keeps the entity.
func (s *CartService) Clear(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	cart, err := s.mutate(ctx, ref, false, func(cart *domain.Cart) (bool, error) {
		if cart.IsEmpty() {
			return false, nil
		}
		cart.Reset()
		return true, nil
	})
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(ref, s.now().UTC()), nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.CartMutation("clear", ref.Kind.String())
	return cart, nil
}

// Delete removes the cart entity. Deleting a missing cart is not an error.
func (s *CartService) Delete(ctx context.Context, ref domain.CartRef) error {
	unlock := s.locks.Lock(ref.String())
	defer unlock()

	if err := s.repo.DeleteCart(ctx, ref); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.FromContext(ctx, s.log).Error("repo delete cart failed", "cart", ref.String(), "error", err)
		return fmt.Errorf("delete cart: %w", err)
	}
	s.invalidateCache(ctx, ref)

	s.metrics.CartMutation("delete", ref.Kind.String())
	return nil
}

// Deduct takes ordered quantities off the cart after checkout. Lines added or
// raised while the order was being placed keep the surplus. A buy-now cart
// left empty is removed.
func (s *CartService) Deduct(ctx context.Context, ref domain.CartRef, ordered map[string]int) (*domain.Cart, error) {
	cart, err := s.mutate(ctx, ref, false, func(cart *domain.Cart) (bool, error) {
		return cart.Deduct(ordered), nil
	})
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(ref, s.now().UTC()), nil
	}
	if err != nil {
		return nil, err
	}

	if ref.Kind == domain.CartKindBuyNow && cart.IsEmpty() {
		if err := s.deleteIfEmpty(ctx, ref); err != nil {
			return nil, err
		}
	}

	s.metrics.CartMutation("deduct", ref.Kind.String())
	return cart, nil
}

// deleteIfEmpty re-reads the cart under its lock so a line added after Deduct
// is not removed with it.
func (s *CartService) deleteIfEmpty(ctx context.Context, ref domain.CartRef) error {
	unlock := s.locks.Lock(ref.String())
	defer unlock()

	cart, err := s.repo.GetCart(ctx, ref)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get cart: %w", err)
	}
	if !cart.IsEmpty() {
		return nil
	}
	if err := s.repo.DeleteCart(ctx, ref); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.FromContext(ctx, s.log).Error("repo delete cart failed", "cart", ref.String(), "error", err)
		return fmt.Errorf("delete cart: %w", err)
	}
	s.invalidateCache(ctx, ref)
	return nil
}

// replace overwrites every line of the cart with a single line for product.
func (s *CartService) replace(ctx context.Context, ref domain.CartRef, product *domain.Product, quantity int) (*domain.Cart, error) {
	if err := validateAdd(product, quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, ref, true, func(cart *domain.Cart) (bool, error) {
		cart.Reset()
		if err := s.checkAdd(cart, product, quantity); err != nil {
			return false, err
		}
		now := s.now().UTC()
		cart.CreatedAt = now
		cart.Increment(product.ID, quantity, product.Price, now)
		return true, nil
	})
}

// mutate runs a read-modify-write of one cart under its lock. fn reports
// whether it changed the cart; unchanged carts are not written. A version
// conflict from another instance re-reads and re-applies fn.
func (s *CartService) mutate(ctx context.Context, ref domain.CartRef, create bool, fn func(*domain.Cart) (bool, error)) (*domain.Cart, error) {
	unlock := s.locks.Lock(ref.String())
	defer unlock()

	log := logger.FromContext(ctx, s.log)
	for attempt := 0; ; attempt++ {
		cart, err := s.repo.GetCart(ctx, ref)
		if errors.Is(err, repository.ErrCartNotFound) {
			if !create {
				return nil, err
			}
			cart = domain.NewCart(ref, s.now().UTC())
		} else if err != nil {
			log.Error("repo get cart failed", "cart", ref.String(), "error", err)
			return nil, fmt.Errorf("get cart: %w", err)
		}

		changed, err := fn(cart)
		if err != nil {
			return nil, err
		}
		if !changed {
			return cart, nil
		}

		err = s.repo.UpsertCart(ctx, cart)
		if errors.Is(err, repository.ErrVersionConflict) && attempt < defaultMaxRetries {
			log.Debug("cart version conflict, retrying", "cart", ref.String(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			log.Error("repo upsert cart failed", "cart", ref.String(), "error", err)
			return nil, fmt.Errorf("save cart: %w", err)
		}

		s.writeThrough(ctx, cart)
		return cart.Clone(), nil
	}
}

func validateAdd(product *domain.Product, quantity int) error {
	if product == nil || product.ID == "" {
		return domain.NewValidationError("productId", "is required")
	}
	if quantity < 1 {
		return domain.NewValidationError("quantity", "must be at least 1")
	}
	if product.Price.IsNegative() {
		return domain.NewValidationError("price", "must not be negative")
	}
	if !product.InStock() {
		return domain.NewValidationError("productId", "product is out of stock")
	}
	return nil
}

func (s *CartService) checkAdd(cart *domain.Cart, product *domain.Product, quantity int) error {
	next := cart.Quantity(product.ID) + quantity
	if next > s.opts.MaxLineQuantity {
		return domain.NewValidationError("quantity", fmt.Sprintf("must not exceed %d", s.opts.MaxLineQuantity))
	}
	if s.opts.EnforceStock && next > product.Stock {
		return &domain.StockError{ProductID: product.ID, Requested: next, Available: product.Stock}
	}
	return nil
}

func (s *CartService) checkStock(ctx context.Context, productID string, quantity int) error {
	if !s.opts.EnforceStock || s.stock == nil {
		return nil
	}
	product, err := s.stock.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("check stock of %s: %w", productID, err)
	}
	if quantity > product.Stock {
		return &domain.StockError{ProductID: productID, Requested: quantity, Available: product.Stock}
	}
	return nil
}

// writeThrough replaces the cached copy; if that fails the entry is dropped so
// readers fall back to the repository.
func (s *CartService) writeThrough(ctx context.Context, cart *domain.Cart) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	if err := s.cache.Set(cctx, cart); err != nil {
		logger.FromContext(ctx, s.log).Warn("cache set failed, invalidating", "cart", cart.Ref().String(), "error", err)
		if err := s.cache.Delete(cctx, cart.Ref()); err != nil {
			logger.FromContext(ctx, s.log).Error("cache invalidate failed", "cart", cart.Ref().String(), "error", err)
		}
	}
}

func (s *CartService) fillCache(ctx context.Context, cart *domain.Cart) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	if err := s.cache.SetIfAbsent(cctx, cart); err != nil {
		logger.FromContext(ctx, s.log).Warn("cache fill failed", "cart", cart.Ref().String(), "error", err)
	}
}

func (s *CartService) invalidateCache(ctx context.Context, ref domain.CartRef) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	if err := s.cache.Delete(cctx, ref); err != nil {
		logger.FromContext(ctx, s.log).Error("cache invalidate failed", "cart", ref.String(), "error", err)
	}
}

type nopCache struct{}

func (nopCache) Get(context.Context, domain.CartRef) (*domain.Cart, error) {
	return nil, cache.ErrCacheMiss
}
func (nopCache) Set(context.Context, *domain.Cart) error         { return nil }
func (nopCache) SetIfAbsent(context.Context, *domain.Cart) error { return nil }
func (nopCache) Delete(context.Context, domain.CartRef) error    { return nil }
