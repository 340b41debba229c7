package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckout_PlacesOrderAndClearsCart(t *testing.T) {
	h := newHarness(t)
	user := asUser(t, "user-1")
	h.do(http.MethodPost, "/api/cart/add", addItem("cam-001", 2), user)

	rec := h.do(http.MethodPost, "/api/checkout", validCheckout("persistent"), user, withHeader(IdempotencyKeyHeader, "key-1"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[CheckoutResponseDTO](t, rec)
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, "persistent", resp.Source)
	require.Len(t, resp.Order.Items, 1)
	assert.Equal(t, "Mirrorless Camera", resp.Order.Items[0].Name)
	assert.Equal(t, json.Number("2999.00"), resp.Order.Total)
	assert.Equal(t, "Springfield", resp.Order.ShippingAddress.City)

	rec = h.do(http.MethodGet, "/api/cart", nil, user)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)
}

func TestCheckout_ReplaySameKey(t *testing.T) {
	h := newHarness(t)
	user := asUser(t, "user-1")
	h.do(http.MethodPost, "/api/cart/add", addItem("cam-001", 1), user)

	body := validCheckout("persistent")
	body["idempotencyKey"] = "body-key"
	first := h.do(http.MethodPost, "/api/checkout", body, user)
	require.Equal(t, http.StatusCreated, first.Code)
	firstResp := decode[CheckoutResponseDTO](t, first)

	h.do(http.MethodPost, "/api/cart/add", addItem("acc-002", 1), user)

	second := h.do(http.MethodPost, "/api/checkout", body, user)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(replayedHeader))
	assert.Equal(t, firstResp.OrderID, decode[CheckoutResponseDTO](t, second).OrderID)

	cart, err := h.carts.GetCart(context.Background(), domain.PersistentRef("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Quantity("acc-002"))
}

func TestCheckout_ErrorMapping(t *testing.T) {
	h := newHarness(t)
	user := asUser(t, "user-1")

	rec := h.do(http.MethodPost, "/api/checkout", validCheckout("persistent"), user)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Code)

	h.do(http.MethodPost, "/api/cart/add", addItem("cam-001", 2), user)

	bad := validCheckout("persistent")
	bad["shippingAddress"] = map[string]string{"addressLine": "1 Main St", "city": "", "state": "IL", "postalCode": "62701"}
	rec = h.do(http.MethodPost, "/api/checkout", bad, user)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var vBody struct {
		Code    string              `json:"code"`
		Details []domain.FieldError `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&vBody))
	assert.Equal(t, "invalid_request", vBody.Code)
	require.Len(t, vBody.Details, 1)
	assert.Equal(t, "shippingAddress.city", vBody.Details[0].Field)

	rec = h.do(http.MethodPost, "/api/checkout", validCheckout("wishlist"), user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.ledger.fail(errLedgerDown)
	rec = h.do(http.MethodPost, "/api/checkout", validCheckout("persistent"), user)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	errBody := decode[ErrorResponse](t, rec)
	assert.Equal(t, "order_submission_failed", errBody.Code)
	assert.NotContains(t, errBody.Error, "10.1.2.3")

	cart, err := h.carts.GetCart(context.Background(), domain.PersistentRef("user-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Quantity("cam-001"))
}

func TestCheckout_BuyNowAllowsSession(t *testing.T) {
	h := newHarness(t)
	session := asSession("guest-1")
	h.do(http.MethodPost, "/api/buy-now", addItem("acc-002", 1), session)

	rec := h.do(http.MethodPost, "/api/checkout", validCheckout("persistent"), session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/api/checkout", validCheckout("buy_now"), session)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, json.Number("1499.00"), decode[CheckoutResponseDTO](t, rec).Order.Total)

	rec = h.do(http.MethodGet, "/api/buy-now", nil, session)
	assert.Empty(t, decode[CartDTO](t, rec).Lines)
}
