package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
)

// PaymentGateway authorizes the amount of a checkout before its order is
// stored and voids the authorization if the order is never placed.
type PaymentGateway interface {
	Authorize(ctx context.Context, reference string, amount decimal.Decimal, card entity.PaymentCard) (authID string, err error)
	Void(ctx context.Context, authID string) error
}
