package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(reader OrderReader, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{orders: reader, timeout: timeout, log: log}
}

// GET /api/orders/mine
func (h *OrdersHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.orders.ListOrdersByOwner(ctx, id.OwnerID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, http.StatusOK, OrdersResponse{Orders: dtos})
}

// GET /api/orders/{id}
//
// Orders of other owners are reported as not found.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := requireOwner(w, r, false)
	if !ok {
		return
	}

	rawID := chi.URLParam(r, "id")
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		handleServiceError(w, r, h.log, domain.NewValidationError("id", "must be a UUID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) || (err == nil && order.OwnerID != id.OwnerID) {
		handleServiceError(w, r, h.log, &domain.NotFoundError{Resource: "order", ID: rawID})
		return
	}
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}
