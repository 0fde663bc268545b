package entity

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPayment  = errors.New("card number and cardholder name are required")
	ErrPaymentDeclined = errors.New("payment declined")
)

// PaymentCard is what the checkout form collects. Capture is simulated, so
// only presence of the number and holder is checked.
type PaymentCard struct {
	Number string `json:"cardNumber"`
	Expiry string `json:"expiry,omitempty"`
	CVV    string `json:"cvv,omitempty"`
	Holder string `json:"name"`
}

func (c PaymentCard) Validate() error {
	if strings.TrimSpace(c.Number) == "" || strings.TrimSpace(c.Holder) == "" {
		return ErrInvalidPayment
	}
	return nil
}

// Last4 is the only part of the number that is ever logged.
func (c PaymentCard) Last4() string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, c.Number)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
