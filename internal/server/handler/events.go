package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vogeb-org/auctiond/internal/domain"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventStream provides ordered replay of the durable event journal.
type EventStream interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves the event replay endpoint. Live delivery happens over
// the WebSocket feed; this endpoint lets a consumer that missed events catch
// up from the journal by cursor.
type EventsHandler struct {
	stream  EventStream
	channel string
	logger  *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading from the given stream
// channel.
func NewEventsHandler(stream EventStream, channel string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		stream:  stream,
		channel: channel,
		logger:  logger,
	}
}

// streamEvent is one replayed journal entry. ID is the cursor to pass as
// "after" on the next request.
type streamEvent struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ListEvents returns journal entries after the given cursor, oldest first.
// GET /api/events?after=0&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxEventLimit {
			n = maxEventLimit
		}
		limit = n
	}

	msgs, err := h.stream.StreamRead(r.Context(), h.channel, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event stream read failed",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "event stream read failed")
		return
	}

	events := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, streamEvent{ID: m.ID, Payload: json.RawMessage(m.Payload)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
