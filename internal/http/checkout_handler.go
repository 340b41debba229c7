package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fjod/photopixel/internal/checkout"
	"github.com/fjod/photopixel/internal/domain"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	log      *slog.Logger
}

func NewCheckoutHandler(svc CheckoutService, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, log: log}
}

// POST /api/checkout
//
// The orchestrator bounds its own collaborator calls, so the request context
// is passed through without an extra deadline.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if !decodeRequest(w, r, h.log, &req) {
		return
	}

	source := domain.CartKind(strings.TrimSpace(req.Source))
	if source == "" {
		source = domain.CartKindPersistent
	}
	id, ok := requireOwner(w, r, source == domain.CartKindBuyNow)
	if !ok {
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.checkout.Checkout(r.Context(), checkout.Request{
		OwnerID:         id.OwnerID,
		Source:          source,
		IdempotencyKey:  key,
		ShippingAddress: req.ShippingAddress.toDomain(),
		Payment:         req.Payment,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	if result.Replayed {
		w.Header().Set(replayedHeader, "true")
	}
	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID:  result.OrderID,
		Order:    toOrderDraftDTO(result.Order),
		Source:   result.Source.String(),
		PlacedAt: result.PlacedAt,
	})
}
