package checkout

import (
	"strings"

	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/validation"
)

// checkoutForm nests the address and card under the names clients send them as.
type checkoutForm struct {
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	Payment         PaymentForm            `json:"payment"`
}

// normalizeAddress trims every field of the address.
func normalizeAddress(a domain.ShippingAddress) domain.ShippingAddress {
	return domain.ShippingAddress{
		AddressLine: strings.TrimSpace(a.AddressLine),
		City:        strings.TrimSpace(a.City),
		State:       strings.TrimSpace(a.State),
		PostalCode:  strings.TrimSpace(a.PostalCode),
	}
}

func normalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// normalizePayment trims the form and drops card number separators.
func normalizePayment(p PaymentForm) PaymentForm {
	return PaymentForm{
		CardholderName: strings.TrimSpace(p.CardholderName),
		CardNumber:     normalizeCardNumber(strings.TrimSpace(p.CardNumber)),
		Expiry:         strings.TrimSpace(p.Expiry),
		CVV:            strings.TrimSpace(p.CVV),
	}
}

// validateForm returns nil or a ValidationError listing every offending field.
// Both parts are expected to be normalized.
func validateForm(address domain.ShippingAddress, payment PaymentForm) error {
	return validation.Struct(checkoutForm{ShippingAddress: address, Payment: payment})
}
