package constants

// contextKey is unexported so keys from other packages never collide.
type contextKey string

const (
	HeaderXRequestId      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	// ContextKeyRequestID holds the chi request id of the inbound request.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyIdempotencyKey holds the client-supplied idempotency key.
	ContextKeyIdempotencyKey contextKey = "idempotency_key"
)
