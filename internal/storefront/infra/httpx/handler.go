package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/constants"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/cart"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/domain/entity"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/review"
)

// SessionIssuer signs users in. Signing out goes through the identity
// provider.
type SessionIssuer interface {
	SignIn(email, displayName string) (string, entity.User, error)
}

// Subscriber streams events of a topic until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Deps are the collaborators of the handler.
type Deps struct {
	Cart        *cart.Manager
	Checkout    *coordinator.Checkout
	Store       ports.RemoteStore
	Identity    ports.IdentityProvider
	Sessions    SessionIssuer
	Events      Subscriber
	DisplayRate int64
}

// Handler serves the storefront HTTP API.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SignIn opens a session and returns its bearer token.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	token, user, err := h.deps.Sessions.SignIn(req.Email, req.DisplayName)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	slog.InfoContext(r.Context(), "user signed in", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{Token: token, User: user})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Identity.SignOut(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCart reloads the cart and returns it. On a failed reload the error is
// returned and the previous view is kept for the next request.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	if err := h.deps.Cart.Refresh(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeCart(w)
}

// SetQuantity updates one line. Quantities below 1 are rejected without a
// call to the data service.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	var req SetQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Quantity == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "quantity is required")
		return
	}
	if err := h.deps.Cart.SetQuantity(r.Context(), lineID(r), *req.Quantity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeCart(w)
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	if err := h.deps.Cart.Remove(r.Context(), lineID(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeCart(w)
}

// Checkout places an order for the current cart view. A checkout that placed
// its order but left lines in the cart is still a success; the response
// carries a warning and the leftover line ids.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Payment != nil {
		if err := req.Payment.Validate(); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	idempKey, _ := r.Context().Value(constants.ContextKeyIdempotencyKey).(string)
	if res, ok := h.deps.Checkout.Replay(r.Context(), user, idempKey); ok {
		writeJSON(w, http.StatusOK, mapCheckout(res))
		return
	}

	lines := h.deps.Cart.Lines()
	if len(lines) == 0 {
		writeError(w, r, http.StatusBadRequest, "empty_cart", "the cart is empty")
		return
	}

	// The saga must not be cut short by the client going away once the
	// order may have been stored.
	ctx := context.WithoutCancel(r.Context())

	res, err := h.deps.Checkout.RunWithPayment(ctx, user, lines, idempKey, req.Payment)
	if err != nil {
		slog.ErrorContext(ctx, "checkout failed", "user_id", user.ID, "error", err)
		writeDomainError(w, r, err)
		return
	}
	if err := h.deps.Cart.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "cart reload after checkout failed", "error", err)
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, mapCheckout(res))
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	itemID := entity.ID(chi.URLParam(r, "id"))
	agg := review.NewAggregator(h.deps.Store)
	if err := agg.Load(r.Context(), itemID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapReviews(agg))
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	user, _ := h.deps.Identity.CurrentUser(r.Context())

	itemID := entity.ID(chi.URLParam(r, "id"))
	agg := review.NewAggregator(h.deps.Store)
	if err := agg.Submit(r.Context(), itemID, user, req.Rating, req.Comment); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapReviews(agg))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*entity.User, bool) {
	user, ok := h.deps.Identity.CurrentUser(r.Context())
	if !ok {
		writeDomainError(w, r, entity.ErrAuthRequired)
		return nil, false
	}
	return user, true
}

func (h *Handler) writeCart(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, mapCart(h.deps.Cart.Lines(), h.deps.DisplayRate))
}

func mapReviews(agg *review.Aggregator) ReviewsResponse {
	return ReviewsResponse{
		ProductID: agg.ItemID(),
		Reviews:   agg.Reviews(),
		Average:   agg.Average(),
		Count:     agg.Count(),
	}
}

func lineID(r *http.Request) entity.ID {
	return entity.ID(chi.URLParam(r, "id"))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "status", status, "error", code, "message", msg)
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// writeDomainError maps core errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entity.ErrAuthRequired):
		writeError(w, r, http.StatusUnauthorized, "auth_required", "please sign in")
	case errors.Is(err, entity.ErrInvalidQuantity),
		errors.Is(err, entity.ErrInvalidRating),
		errors.Is(err, entity.ErrEmptyComment):
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, entity.ErrInvalidPayment):
		writeError(w, r, http.StatusBadRequest, "invalid_payment", err.Error())
	case errors.Is(err, entity.ErrPaymentDeclined):
		writeError(w, r, http.StatusPaymentRequired, "payment_declined", err.Error())
	case errors.Is(err, review.ErrStaleLoad):
		writeError(w, r, http.StatusConflict, "stale", err.Error())
	case errors.Is(err, ports.ErrCircuitOpen):
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", "the store is temporarily unavailable, please retry")
	case errors.Is(err, ports.ErrTransport):
		writeError(w, r, http.StatusBadGateway, "store_error", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", err.Error())
	}
}
