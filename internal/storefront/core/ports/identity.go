package ports

import (
	"context"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
)

// IdentityProvider exposes the signed-in user of the request in ctx.
// It is read-only to the core; components never cache the user.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (*entity.User, bool)
	SignOut(ctx context.Context) error
}
