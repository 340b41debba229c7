package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/photopixel/internal/catalog"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/pricing"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
	AddItem(ctx context.Context, ref domain.CartRef, product *domain.Product, quantity int) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, ref domain.CartRef, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ref domain.CartRef, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, ref domain.CartRef) (*domain.Cart, error)
}

// CartHandler serves the persistent cart. It requires a signed-in owner.
type CartHandler struct {
	carts   CartService
	catalog catalog.Reader
	pricing *pricing.Calculator
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(carts CartService, reader catalog.Reader, calc *pricing.Calculator, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, catalog: reader, pricing: calc, timeout: timeout, log: log}
}

// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, domain.PersistentRef(id.OwnerID))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart, h.pricing))
}

// POST /api/cart/add
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
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

	cart, err := h.carts.AddItem(ctx, domain.PersistentRef(id.OwnerID), product, req.quantity())
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(cart, h.pricing))
}

// PUT /api/cart/{productId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if !decodeRequest(w, r, h.log, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.UpdateQuantity(ctx, domain.PersistentRef(id.OwnerID), chi.URLParam(r, "productId"), *req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart, h.pricing))
}

// DELETE /api/cart/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, domain.PersistentRef(id.OwnerID), chi.URLParam(r, "productId"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart, h.pricing))
}

// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.Clear(ctx, domain.PersistentRef(id.OwnerID))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(cart, h.pricing))
}

func lookupProduct(ctx context.Context, reader catalog.Reader, productID string) (*domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.NewValidationError("productId", "is required")
	}
	return reader.GetProduct(ctx, productID)
}
