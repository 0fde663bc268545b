// Package identity is a development identity provider: bearer tokens mapped
// to users in memory. It stands in for the real sign-in service.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

var _ ports.IdentityProvider = (*Sessions)(nil)

var ErrInvalidCredentials = errors.New("email is required")

type ctxKey int

const (
	tokenKey ctxKey = iota
)

// Sessions keeps signed-in users by token. Safe for concurrent use.
type Sessions struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

func NewSessions() *Sessions {
	return &Sessions{users: make(map[string]entity.User)}
}

// SignIn opens a session for the user with email. The user id is derived
// from the email so that repeated sign-ins map to the same shopper.
func (s *Sessions) SignIn(email, displayName string) (string, entity.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", entity.User{}, ErrInvalidCredentials
	}
	user := entity.User{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String(),
		DisplayName: strings.TrimSpace(displayName),
		Email:       email,
	}
	token := uuid.NewString()

	s.mu.Lock()
	s.users[token] = user
	s.mu.Unlock()
	return token, user, nil
}

// Middleware attaches the bearer token of the request, if any, to its
// context. It never rejects a request; handlers decide what needs a user.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearer(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), tokenKey, token))
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the user of the session in ctx.
func (s *Sessions) CurrentUser(ctx context.Context) (*entity.User, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	if !ok {
		return nil, false
	}
	s.mu.RLock()
	user, ok := s.users[token]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &user, true
}

// SignOut ends the session in ctx.
func (s *Sessions) SignOut(ctx context.Context) error {
	token, ok := ctx.Value(tokenKey).(string)
	if !ok {
		return entity.ErrAuthRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[token]; !ok {
		return entity.ErrAuthRequired
	}
	delete(s.users, token)
	return nil
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
