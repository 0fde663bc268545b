package httpx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// keepAliveInterval keeps idle streams open through proxies.
const keepAliveInterval = 25 * time.Second

// CartEvents streams cart change events as server-sent events. The current
// snapshot is sent first so the badge is correct before the first change.
func (h *Handler) CartEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming_unsupported", "")
		return
	}

	ctx := r.Context()
	msgs, err := h.deps.Events.Subscribe(ctx, ports.TopicCartChanged)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "subscribe_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot, _ := json.Marshal(h.deps.Cart.Snapshot())
	writeEvent(w, "", snapshot)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			err := writeEvent(w, msg.UUID, msg.Payload)
			msg.Ack()
			if err != nil {
				slog.DebugContext(ctx, "cart event stream closed", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, id string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ports.TopicCartChanged, data)
	return err
}
