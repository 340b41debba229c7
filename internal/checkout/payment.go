package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrPaymentDeclined = errors.New("payment declined")

// PaymentForm is the mock card form. It is only shape-checked; nothing is charged.
type PaymentForm struct {
	CardholderName string `json:"cardholderName" validate:"required"`
	CardNumber     string `json:"cardNumber" validate:"required,digits=16"`
	Expiry         string `json:"expiry" validate:"required,mmyy"`
	CVV            string `json:"cvv" validate:"required,digits=3"`
}

type PaymentAuthorizer interface {
	// Authorize returns an authorization id, or ErrPaymentDeclined.
	Authorize(ctx context.Context, ownerID string, amount decimal.Decimal, currency string, form PaymentForm) (string, error)
}

// MockAuthorizer approves every well-formed payment.
type MockAuthorizer struct{}

func (MockAuthorizer) Authorize(ctx context.Context, _ string, _ decimal.Decimal, _ string, _ PaymentForm) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "mock-auth-" + uuid.NewString(), nil
}
