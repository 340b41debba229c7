package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/photopixel/internal/catalog"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/pricing"
)

type BuyNowService interface {
	Start(ctx context.Context, ownerID string, product *domain.Product, quantity int) (*domain.Cart, error)
	Add(ctx context.Context, ownerID string, product *domain.Product, quantity int) (*domain.Cart, error)
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	Cancel(ctx context.Context, ownerID string) error
}

// BuyNowHandler serves the buy-now overlay. Anonymous sessions are allowed.
type BuyNowHandler struct {
	buyNow  BuyNowService
	catalog catalog.Reader
	pricing *pricing.Calculator
	timeout time.Duration
	log     *slog.Logger
}

func NewBuyNowHandler(buyNow BuyNowService, reader catalog.Reader, calc *pricing.Calculator, timeout time.Duration, log *slog.Logger) *BuyNowHandler {
	return &BuyNowHandler{buyNow: buyNow, catalog: reader, pricing: calc, timeout: timeout, log: log}
}

// POST /api/buy-now
func (h *BuyNowHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.addItem(w, r, h.buyNow.Start)
}

// POST /api/buy-now/items
func (h *BuyNowHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.addItem(w, r, h.buyNow.Add)
}

func (h *BuyNowHandler) addItem(w http.ResponseWriter, r *http.Request, op func(context.Context, string, *domain.Product, int) (*domain.Cart, error)) {
	id, ok := requireOwner(w, r, true)
	if !ok {
		return
	}
	var req AddItemRequestDTO
	if !decodeRequest(w, r, h.log, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := lookupProduct(ctx, h.catalog, req.ProductID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	cart, err := op(ctx, id.OwnerID, product, req.quantity())
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(cart, h.pricing))
}

// GET /api/buy-now
func (h *BuyNowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, true)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.buyNow.Get(ctx, id.OwnerID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart, h.pricing))
}

// DELETE /api/buy-now
func (h *BuyNowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, true)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.buyNow.Cancel(ctx, id.OwnerID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
