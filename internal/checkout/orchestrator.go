// Package checkout turns an owner's cart into a placed order.
//
// An attempt moves Idle -> Validating -> Submitting -> Succeeded, or to Failed
// from Validating or Submitting. One checkout runs per source cart at a time.
// The ordered units leave the source cart only after the order ledger accepted
// the order, and the ledger records that they did.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/metrics"
	"github.com/fjod/photopixel/internal/orders"
	"github.com/fjod/photopixel/internal/pricing"
	"github.com/fjod/photopixel/pkg/circuitbreaker"
)

const DefaultRequestTimeout = 5 * time.Second

var ErrCheckoutInProgress = errors.New("checkout already in progress")

type CartStore interface {
	GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	Deduct(ctx context.Context, ref domain.CartRef, ordered map[string]int) (*domain.Cart, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type OrderLedger interface {
	PlaceOrder(ctx context.Context, checkoutID, ownerID string, draft domain.OrderDraft) (*domain.Order, error)
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)
	MarkCartCleared(ctx context.Context, checkoutID string) error
}

type Request struct {
	OwnerID         string
	Source          domain.CartKind
	IdempotencyKey  string
	ShippingAddress domain.ShippingAddress
	Payment         PaymentForm
}

type Result struct {
	OrderID  string            `json:"order_id"`
	Order    domain.OrderDraft `json:"order"`
	Source   domain.CartKind   `json:"source"`
	PlacedAt time.Time         `json:"placed_at"`
	// Replayed is set when the result was stored by an earlier attempt with the same key.
	Replayed bool `json:"-"`
}

type Config struct {
	RepriceAtCheckout bool
	RequestTimeout    time.Duration
}

type Dependencies struct {
	Carts    CartStore
	Catalog  Catalog
	Ledger   OrderLedger
	Payments PaymentAuthorizer
	Attempts AttemptStore
	Pricing  *pricing.Calculator
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Orchestrator struct {
	carts    CartStore
	catalog  Catalog
	ledger   OrderLedger
	payments PaymentAuthorizer
	attempts AttemptStore
	pricing  *pricing.Calculator
	metrics  *metrics.Metrics
	log      *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if deps.Payments == nil {
		deps.Payments = MockAuthorizer{}
	}
	if deps.Attempts == nil {
		deps.Attempts = NewMemoryAttemptStore()
	}
	if deps.Pricing == nil {
		deps.Pricing = pricing.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Orchestrator{
		carts:    deps.Carts,
		catalog:  deps.Catalog,
		ledger:   deps.Ledger,
		payments: deps.Payments,
		attempts: deps.Attempts,
		pricing:  deps.Pricing,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// attempt tracks the state of one checkout for logging and transition checks.
type attempt struct {
	state domain.CheckoutState
	log   *slog.Logger
}

func (a *attempt) moveTo(next domain.CheckoutState) {
	if !domain.CanTransitionTo(a.state, next) {
		a.log.Error("illegal checkout transition", "from", a.state.String(), "to", next.String())
		return
	}
	a.log.Debug("checkout transition", "from", a.state.String(), "to", next.String())
	a.state = next
}

func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	started := o.now()
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.NewValidationError("ownerId", "is required")
	}
	if !req.Source.Valid() {
		return nil, domain.NewValidationError("source", "must be persistent or buy_now")
	}

	ref := domain.CartRef{OwnerID: req.OwnerID, Kind: req.Source}
	log := logger.FromContext(ctx, o.log).With("owner_id", req.OwnerID, "source", req.Source.String())

	locked, err := o.attempts.LockSource(ctx, ref)
	if err != nil {
		log.Error("failed to lock checkout source", "error", err)
		return nil, fmt.Errorf("lock checkout source: %w", err)
	}
	if !locked {
		return nil, ErrCheckoutInProgress
	}
	defer o.unlockSource(ctx, ref, log)

	cart, err := o.loadCart(ctx, ref)
	if err != nil {
		return nil, err
	}

	checkoutID := req.OwnerID + ":" + checkoutKey(req.IdempotencyKey, cart)
	log = log.With("checkout_id", checkoutID)
	att := &attempt{state: domain.CheckoutStateIdle, log: log}

	claimed, previous, err := o.attempts.Begin(ctx, checkoutID)
	if err != nil {
		log.Error("failed to claim checkout attempt", "error", err)
		return nil, fmt.Errorf("claim checkout attempt: %w", err)
	}
	if !claimed {
		if previous != nil {
			log.Info("duplicate checkout request, returning stored result", "order_id", previous.OrderID)
			replay := *previous
			replay.Replayed = true
			o.metrics.Checkout("replayed", o.now().Sub(started).Seconds())
			return &replay, nil
		}
		return nil, ErrCheckoutInProgress
	}

	att.moveTo(domain.CheckoutStateValidating)
	result, err := o.run(ctx, req, ref, cart, checkoutID, att)
	if err != nil {
		att.moveTo(domain.CheckoutStateFailed)
		o.release(ctx, checkoutID, log)
		o.metrics.Checkout("failed", o.now().Sub(started).Seconds())
		log.Warn("checkout failed", "error", err)
		return nil, err
	}

	att.moveTo(domain.CheckoutStateSucceeded)
	o.metrics.Checkout("succeeded", o.now().Sub(started).Seconds())
	log.Info("checkout succeeded", "order_id", result.OrderID, "total", result.Order.Total.String())
	return result, nil
}

// checkoutKey falls back to the cart's identity and version, so a form
// submitted twice without a key lands on the same attempt.
func checkoutKey(key string, cart *domain.Cart) string {
	if k := strings.TrimSpace(key); k != "" {
		return k
	}
	return "cart:" + cart.ID + ":" + strconv.FormatInt(cart.Version, 10)
}

func (o *Orchestrator) loadCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error) {
	lctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	cart, err := o.carts.GetCart(lctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, ref domain.CartRef, cart *domain.Cart, checkoutID string, att *attempt) (*Result, error) {
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	address := normalizeAddress(req.ShippingAddress)
	payment := normalizePayment(req.Payment)
	if err := validateForm(address, payment); err != nil {
		return nil, err
	}

	vctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	draft, err := o.buildDraft(vctx, cart, address)
	if err != nil {
		return nil, err
	}

	if _, err := o.payments.Authorize(vctx, req.OwnerID, draft.Total, draft.Currency, payment); err != nil {
		if errors.Is(err, ErrPaymentDeclined) {
			return nil, &domain.OrderSubmissionError{Message: "payment was declined", Cause: err}
		}
		return nil, &domain.OrderSubmissionError{Message: "payment could not be authorized", Cause: err}
	}

	att.moveTo(domain.CheckoutStateSubmitting)

	// From here on the caller leaving must not split a placed order from its clear.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RequestTimeout)
	defer scancel()

	order, err := o.ledger.PlaceOrder(sctx, checkoutID, req.OwnerID, draft)
	if errors.Is(err, orders.ErrDuplicateCheckout) {
		existing, getErr := o.ledger.GetOrderByCheckoutID(sctx, checkoutID)
		if getErr != nil {
			return nil, submissionError(getErr)
		}
		if existing.CartClearedAt == nil {
			att.log.Info("order recorded by an earlier attempt, settling cart now", "order_id", existing.ID.String())
			o.settleSource(sctx, ref, checkoutID, existing, att.log)
		} else {
			att.log.Info("order already recorded and settled, not clearing cart again", "order_id", existing.ID.String())
		}
		result := o.resultFor(existing, req.Source)
		o.storeResult(sctx, checkoutID, result, att.log)
		return result, nil
	}
	if err != nil {
		return nil, submissionError(err)
	}

	o.settleSource(sctx, ref, checkoutID, order, att.log)

	result := o.resultFor(order, req.Source)
	o.storeResult(sctx, checkoutID, result, att.log)
	return result, nil
}

func (o *Orchestrator) buildDraft(ctx context.Context, cart *domain.Cart, address domain.ShippingAddress) (domain.OrderDraft, error) {
	items := make([]domain.OrderItem, 0, len(cart.Lines))
	priced := make([]domain.CartLine, 0, len(cart.Lines))

	for _, line := range cart.Lines {
		product, err := o.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.OrderDraft{}, domain.NewValidationError("items", fmt.Sprintf("product %s is no longer available", line.ProductID))
		}
		if err != nil {
			return domain.OrderDraft{}, &domain.OrderSubmissionError{Message: "product catalog unavailable", Cause: err}
		}

		unitPrice := line.UnitPrice
		if o.cfg.RepriceAtCheckout {
			unitPrice = product.Price
		}
		line.UnitPrice = unitPrice
		priced = append(priced, line)

		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Image:     product.ImageURL,
			UnitPrice: unitPrice,
		})
	}

	quote := o.pricing.Quote(priced)
	return domain.OrderDraft{
		Items:           items,
		Subtotal:        quote.Subtotal,
		ShippingFee:     quote.ShippingFee,
		Total:           quote.Total,
		Currency:        quote.Currency,
		ShippingAddress: address,
	}, nil
}

// settleSource takes the ordered units off the source cart and records that on
// the order. Units added during submission stay. A failure here does not undo
// the order.
func (o *Orchestrator) settleSource(ctx context.Context, ref domain.CartRef, checkoutID string, order *domain.Order, log *slog.Logger) {
	if _, err := o.carts.Deduct(ctx, ref, order.OrderedQuantities()); err != nil {
		log.Error("order placed but cart was not cleared", "cart", ref.String(), "error", err)
		return
	}
	if err := o.ledger.MarkCartCleared(ctx, checkoutID); err != nil {
		log.Error("cart cleared but not recorded on the order", "cart", ref.String(), "error", err)
	}
}

func (o *Orchestrator) resultFor(order *domain.Order, source domain.CartKind) *Result {
	return &Result{
		OrderID:  order.ID.String(),
		Order:    order.Draft(),
		Source:   source,
		PlacedAt: order.CreatedAt,
	}
}

func (o *Orchestrator) storeResult(ctx context.Context, key string, result *Result, log *slog.Logger) {
	if err := o.attempts.Succeed(ctx, key, result); err != nil {
		log.Error("failed to store checkout result", "error", err)
	}
}

func (o *Orchestrator) unlockSource(ctx context.Context, ref domain.CartRef, log *slog.Logger) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := o.attempts.UnlockSource(uctx, ref); err != nil {
		log.Error("failed to unlock checkout source", "error", err)
	}
}

func (o *Orchestrator) release(ctx context.Context, key string, log *slog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := o.attempts.Release(rctx, key); err != nil {
		log.Error("failed to release checkout attempt", "error", err)
	}
}

// submissionError hides transport detail behind a message safe for users.
func submissionError(err error) error {
	msg := "order ledger rejected the order"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "order ledger timed out"
	case errors.Is(err, circuitbreaker.ErrOpen):
		msg = "order ledger unavailable"
	}
	return &domain.OrderSubmissionError{Message: msg, Cause: err}
}
