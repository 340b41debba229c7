package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/photopixel/internal/checkout"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/validation"
	"github.com/fjod/photopixel/pkg/circuitbreaker"
)

const maxRequestBodySize = 1 << 20

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// decodeRequest decodes the body into dst and checks its validate tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := validation.Struct(dst); err != nil {
		handleServiceError(w, r, log, err)
		return false
	}
	return true
}

type stockDetails struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// handleServiceError maps domain errors to status codes. Unknown errors are
// logged and answered with a generic 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		stockErr      *domain.StockError
		submissionErr *domain.OrderSubmissionError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "request validation failed",
			Code:    "invalid_request",
			Details: validationErr.Fields,
		})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "insufficient stock",
			Code:    "insufficient_stock",
			Details: stockDetails{ProductID: stockErr.ProductID, Requested: stockErr.Requested, Available: stockErr.Available},
		})
	case errors.As(err, &submissionErr):
		logger.FromContext(r.Context(), log).Error("order submission failed", "error", err)
		respondError(w, http.StatusBadGateway, "order_submission_failed", submissionErr.Message)
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		respondError(w, http.StatusConflict, "checkout_in_progress", err.Error())
	case errors.Is(err, circuitbreaker.ErrOpen):
		logger.FromContext(r.Context(), log).Warn("dependency unavailable", "error", err)
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	default:
		logger.FromContext(r.Context(), log).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
