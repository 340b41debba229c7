package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fjod/photopixel/internal/checkout"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/metrics"
	"github.com/fjod/photopixel/internal/orders"
	"github.com/fjod/photopixel/internal/pricing"
	"github.com/fjod/photopixel/internal/repository"
	"github.com/fjod/photopixel/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type fakeCatalog struct {
	products map[string]*domain.Product
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]*domain.Product{
		"cam-001":  {ID: "cam-001", Name: "Mirrorless Camera", Category: "cameras", Price: decimal.NewFromInt(1000), ImageURL: "/images/cam-001.jpg", Stock: 5},
		"acc-002":  {ID: "acc-002", Name: "Lens Cloth", Category: "accessories", Price: decimal.NewFromInt(500), ImageURL: "/images/acc-002.jpg", Stock: 50},
		"lens-003": {ID: "lens-003", Name: "Tilt Shift Lens", Category: "lenses", Price: decimal.NewFromInt(150000), Stock: 0},
	}}
}

func (c *fakeCatalog) ListProducts(_ context.Context, category string) ([]*domain.Product, error) {
	out := make([]*domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if category == "" || p.Category == category {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "product", ID: id}
	}
	cp := *p
	return &cp, nil
}

type fakeLedger struct {
	mu     sync.Mutex
	orders []*domain.Order
	err    error
}

func (l *fakeLedger) PlaceOrder(_ context.Context, checkoutID, ownerID string, draft domain.OrderDraft) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	for _, o := range l.orders {
		if o.CheckoutID == checkoutID {
			return nil, orders.ErrDuplicateCheckout
		}
	}
	o := &domain.Order{
		ID:              uuid.New(),
		CheckoutID:      checkoutID,
		OwnerID:         ownerID,
		Items:           draft.Items,
		Subtotal:        draft.Subtotal,
		ShippingFee:     draft.ShippingFee,
		Total:           draft.Total,
		Currency:        draft.Currency,
		ShippingAddress: draft.ShippingAddress,
		Status:          domain.OrderStatusConfirmed,
		CreatedAt:       time.Now().UTC(),
	}
	l.orders = append(l.orders, o)
	return o, nil
}

func (l *fakeLedger) GetOrderByCheckoutID(_ context.Context, checkoutID string) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.CheckoutID == checkoutID {
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (l *fakeLedger) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (l *fakeLedger) ListOrdersByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Order
	for i := len(l.orders) - 1; i >= 0; i-- {
		if l.orders[i].OwnerID == ownerID {
			out = append(out, l.orders[i])
		}
	}
	return out, nil
}

func (l *fakeLedger) MarkCartCleared(_ context.Context, checkoutID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.CheckoutID == checkoutID && o.CartClearedAt == nil {
			now := time.Now().UTC()
			o.CartClearedAt = &now
		}
	}
	return nil
}

func (l *fakeLedger) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

type harness struct {
	t       *testing.T
	handler http.Handler
	carts   *service.CartService
	ledger  *fakeLedger
	catalog *fakeCatalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Nop()
	calc := pricing.Default()
	m := metrics.New()
	cat := newFakeCatalog()
	ledger := &fakeLedger{}

	carts := service.NewCartService(repository.NewMemoryRepository(), nil, service.Options{
		EnforceStock:    true,
		MaxLineQuantity: service.DefaultMaxLineQuantity,
		Stock:           cat,
		Metrics:         m,
		Logger:          log,
	})
	orch := checkout.NewOrchestrator(checkout.Dependencies{
		Carts:   carts,
		Catalog: cat,
		Ledger:  ledger,
		Pricing: calc,
		Metrics: m,
		Logger:  log,
	}, checkout.Config{})

	handler := NewRouter(RouterConfig{
		JWTSecret: testSecret,
		Logger:    log,
		Metrics:   m.Handler(),
	}, Handlers{
		Products: NewProductHandler(cat, time.Second, log),
		Cart:     NewCartHandler(carts, cat, calc, time.Second, log),
		BuyNow:   NewBuyNowHandler(service.NewBuyNow(carts), cat, calc, time.Second, log),
		Checkout: NewCheckoutHandler(orch, log),
		Orders:   NewOrdersHandler(ledger, time.Second, log),
	})

	return &harness{t: t, handler: handler, carts: carts, ledger: ledger, catalog: cat}
}

type requestOption func(*http.Request)

func asUser(t *testing.T, ownerID string) requestOption {
	token, err := IssueToken(testSecret, ownerID, time.Hour)
	require.NoError(t, err)
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func asSession(id string) requestOption {
	return func(r *http.Request) { r.Header.Set(SessionHeader, id) }
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func (h *harness) do(method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func addItem(productID string, quantity int) AddItemRequestDTO {
	return AddItemRequestDTO{ProductID: productID, Quantity: &quantity}
}

func validCheckout(source string) map[string]any {
	return map[string]any{
		"source": source,
		"shippingAddress": map[string]string{
			"addressLine": "1 Main St",
			"city":        "Springfield",
			"state":       "IL",
			"postalCode":  "62701",
		},
		"payment": map[string]string{
			"cardholderName": "Jane Doe",
			"cardNumber":     "4242 4242 4242 4242",
			"expiry":         "12/29",
			"cvv":            "123",
		},
	}
}

var errLedgerDown = errors.New("dial tcp 10.1.2.3:5432: connection refused")
