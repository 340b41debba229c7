package http

import (
	"encoding/json"
	"time"

	"github.com/fjod/photopixel/internal/checkout"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/fjod/photopixel/internal/pricing"
	"github.com/shopspring/decimal"
)

// money renders an amount as a bare JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type ProductDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Description string      `json:"description,omitempty"`
	Price       json.Number `json:"price"`
	ImageURL    string      `json:"imageUrl"`
	Stock       int         `json:"stock"`
	InStock     bool        `json:"inStock"`
}

func toProductDTO(p *domain.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		Price:       money(p.Price),
		ImageURL:    p.ImageURL,
		Stock:       p.Stock,
		InStock:     p.InStock(),
	}
}

type ProductsResponse struct {
	Products []ProductDTO `json:"products"`
}

// AddItemRequestDTO treats a missing quantity as 1.
type AddItemRequestDTO struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  *int   `json:"quantity,omitempty" validate:"omitnil,min=1"`
}

func (r AddItemRequestDTO) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type CartLineDTO struct {
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	UnitPrice json.Number `json:"unitPrice"`
	LineTotal json.Number `json:"lineTotal"`
}

type CartDTO struct {
	Kind        string        `json:"kind"`
	Lines       []CartLineDTO `json:"lines"`
	ItemCount   int           `json:"itemCount"`
	Subtotal    json.Number   `json:"subtotal"`
	ShippingFee json.Number   `json:"shippingFee"`
	Total       json.Number   `json:"total"`
	Currency    string        `json:"currency"`
}

func toCartDTO(cart *domain.Cart, calc *pricing.Calculator) CartDTO {
	lines := make([]CartLineDTO, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, CartLineDTO{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			LineTotal: money(l.LineTotal()),
		})
	}
	quote := calc.Quote(cart.Lines)
	return CartDTO{
		Kind:        cart.Kind.String(),
		Lines:       lines,
		ItemCount:   quote.ItemCount,
		Subtotal:    money(quote.Subtotal),
		ShippingFee: money(quote.ShippingFee),
		Total:       money(quote.Total),
		Currency:    quote.Currency,
	}
}

type AddressDTO struct {
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
}

func (a AddressDTO) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		AddressLine: a.AddressLine,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
	}
}

func toAddressDTO(a domain.ShippingAddress) AddressDTO {
	return AddressDTO{
		AddressLine: a.AddressLine,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
	}
}

// CheckoutRequestDTO leaves the address and card to the orchestrator, which
// checks them after normalizing and after the empty cart check.
type CheckoutRequestDTO struct {
	Source          string               `json:"source" validate:"omitempty,oneof=persistent buy_now"`
	IdempotencyKey  string               `json:"idempotencyKey"`
	ShippingAddress AddressDTO           `json:"shippingAddress" validate:"-"`
	Payment         checkout.PaymentForm `json:"payment" validate:"-"`
}

type OrderItemDTO struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	Image     string      `json:"image"`
	UnitPrice json.Number `json:"unitPrice"`
}

type OrderDraftDTO struct {
	Items           []OrderItemDTO `json:"items"`
	Subtotal        json.Number    `json:"subtotal"`
	ShippingFee     json.Number    `json:"shippingFee"`
	Total           json.Number    `json:"total"`
	Currency        string         `json:"currency"`
	ShippingAddress AddressDTO     `json:"shippingAddress"`
}

func toOrderDraftDTO(d domain.OrderDraft) OrderDraftDTO {
	items := make([]OrderItemDTO, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, OrderItemDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Image:     it.Image,
			UnitPrice: money(it.UnitPrice),
		})
	}
	return OrderDraftDTO{
		Items:           items,
		Subtotal:        money(d.Subtotal),
		ShippingFee:     money(d.ShippingFee),
		Total:           money(d.Total),
		Currency:        d.Currency,
		ShippingAddress: toAddressDTO(d.ShippingAddress),
	}
}

type CheckoutResponseDTO struct {
	OrderID  string        `json:"orderId"`
	Order    OrderDraftDTO `json:"order"`
	Source   string        `json:"source"`
	PlacedAt time.Time     `json:"placedAt"`
}

type OrderResponseDTO struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	OrderDraftDTO
}

func toOrderDTO(o *domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		ID:            o.ID.String(),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		OrderDraftDTO: toOrderDraftDTO(o.Draft()),
	}
}

type OrdersResponse struct {
	Orders []OrderResponseDTO `json:"orders"`
}
