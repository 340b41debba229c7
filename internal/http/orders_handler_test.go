package http

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, h *harness, owner string) CheckoutResponseDTO {
	t.Helper()
	user := asUser(t, owner)
	h.do(http.MethodPost, "/api/cart/add", addItem("acc-002", 1), user)
	rec := h.do(http.MethodPost, "/api/checkout", validCheckout("persistent"), user)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CheckoutResponseDTO](t, rec)
}

func TestOrders_ListMineNewestFirst(t *testing.T) {
	h := newHarness(t)
	first := placeOrder(t, h, "user-1")
	second := placeOrder(t, h, "user-1")
	placeOrder(t, h, "user-2")

	rec := h.do(http.MethodGet, "/api/orders/mine", nil, asUser(t, "user-1"))

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[OrdersResponse](t, rec)
	require.Len(t, list.Orders, 2)
	assert.Equal(t, second.OrderID, list.Orders[0].ID)
	assert.Equal(t, first.OrderID, list.Orders[1].ID)
	assert.Equal(t, "CONFIRMED", list.Orders[0].Status)
}

func TestOrders_GetIsOwnerScoped(t *testing.T) {
	h := newHarness(t)
	placed := placeOrder(t, h, "user-1")

	rec := h.do(http.MethodGet, "/api/orders/"+placed.OrderID, nil, asUser(t, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, placed.OrderID, decode[OrderResponseDTO](t, rec).ID)

	rec = h.do(http.MethodGet, "/api/orders/"+placed.OrderID, nil, asUser(t, "user-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/orders/"+uuid.NewString(), nil, asUser(t, "user-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/orders/not-a-uuid", nil, asUser(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/orders/mine", nil, asSession("guest"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
