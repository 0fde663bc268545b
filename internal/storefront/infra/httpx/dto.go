package httpx

import (
	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/money"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
)

type SignInRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type SessionResponse struct {
	Token string      `json:"token"`
	User  entity.User `json:"user"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type CartLineResponse struct {
	ID           entity.ID `json:"id"`
	Title        string    `json:"title,omitempty"`
	Image        string    `json:"image,omitempty"`
	Price        float64   `json:"price"`
	Quantity     int       `json:"quantity"`
	Subtotal     string    `json:"subtotal"`
	DisplayPrice int64     `json:"displayPrice"`
}

type CartResponse struct {
	Lines        []CartLineResponse `json:"lines"`
	Count        int                `json:"count"`
	Units        int                `json:"units"`
	Total        string             `json:"total"`
	DisplayTotal int64              `json:"displayTotal"`
}

type CheckoutRequest struct {
	Payment *entity.PaymentCard `json:"payment,omitempty"`
}

type CheckoutResponse struct {
	Order          entity.Order `json:"order"`
	UnclearedLines []string     `json:"unclearedLines,omitempty"`
	Replayed       bool         `json:"replayed"`
	Warning        string       `json:"warning,omitempty"`
	Message        string       `json:"message"`
}

type SubmitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewsResponse struct {
	ProductID entity.ID       `json:"productId"`
	Reviews   []entity.Review `json:"reviews"`
	Average   float64         `json:"average"`
	Count     int             `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// mapCart derives every figure from the one lines slice so the response is
// internally consistent.
func mapCart(lines []entity.CartLine, rate int64) CartResponse {
	out := CartResponse{
		Lines: make([]CartLineResponse, len(lines)),
		Count: len(lines),
		Units: entity.CountUnits(lines),
	}
	total := entity.SumLines(lines)
	out.Total = money.Format(total)
	out.DisplayTotal = money.Display(total, rate)

	for i, l := range lines {
		out.Lines[i] = CartLineResponse{
			ID:           l.ID,
			Title:        l.Title,
			Image:        l.Image,
			Price:        l.Price,
			Quantity:     l.Quantity,
			Subtotal:     money.Format(l.Subtotal()),
			DisplayPrice: money.DisplayPrice(l.Price, rate),
		}
	}
	return out
}

func mapCheckout(res *coordinator.CheckoutResult) CheckoutResponse {
	out := CheckoutResponse{
		Order:          res.Order,
		UnclearedLines: res.UnclearedLines,
		Replayed:       res.Replayed,
		Message:        "Order placed successfully",
	}
	if !res.Consistent() {
		out.Warning = "Some cart items could not be removed; they will be cleared shortly"
	}
	return out
}
