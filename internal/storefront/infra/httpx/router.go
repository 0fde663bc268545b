package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/infra/httpx/middlewares"
)

// NewRouter mounts the API. authenticate resolves the session of each
// request; it must not reject anonymous ones.
func NewRouter(handler *Handler, authenticate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(authenticate)

	r.Get("/health", handler.Health)

	r.Post("/session", handler.SignIn)
	r.Delete("/session", handler.SignOut)

	// The event stream is long-lived and stays outside the timeout group.
	r.Get("/cart/events", handler.CartEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/cart", handler.GetCart)
		r.Patch("/cart/{id}", handler.SetQuantity)
		r.Delete("/cart/{id}", handler.RemoveLine)

		r.Post("/checkout", handler.Checkout)

		r.Get("/products/{id}/reviews", handler.ListReviews)
		r.Post("/products/{id}/reviews", handler.SubmitReview)
	})
	return r
}
