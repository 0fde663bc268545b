package entity

import "errors"

var (
	ErrAuthRequired       = errors.New("sign in required")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrMissingLineID      = errors.New("cart line has no id")
	ErrNegativePrice      = errors.New("price must not be negative")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrEmptyComment       = errors.New("comment must not be empty")
	ErrOrderTotalMismatch = errors.New("order total does not match its lines")
)
