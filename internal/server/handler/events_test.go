package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// stubStream implements EventStream, recording the cursor it was read from.
type stubStream struct {
	msgs      []domain.StreamMessage
	err       error
	lastAfter string
	lastCount int
}

func (s *stubStream) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	s.lastAfter = lastID
	s.lastCount = count
	return s.msgs, s.err
}

func TestListEventsReplaysFromCursor(t *testing.T) {
	stream := &stubStream{
		msgs: []domain.StreamMessage{
			{ID: "1700000000000-0", Payload: []byte(`{"event":"auction_created","auction_id":1}`)},
			{ID: "1700000000001-0", Payload: []byte(`{"event":"auction_sold","auction_id":1}`)},
		},
	}
	h := NewEventsHandler(stream, "auctions", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events?after=1699999999999-0&limit=50", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1699999999999-0", stream.lastAfter)
	assert.Equal(t, 50, stream.lastCount)

	var resp struct {
		Events []struct {
			ID      string          `json:"id"`
			Payload json.RawMessage `json:"payload"`
		} `json:"events"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "1700000000000-0", resp.Events[0].ID)
	assert.JSONEq(t, `{"event":"auction_sold","auction_id":1}`, string(resp.Events[1].Payload))
}

func TestListEventsDefaultsCursorAndLimit(t *testing.T) {
	stream := &stubStream{}
	h := NewEventsHandler(stream, "auctions", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", stream.lastAfter)
	assert.Equal(t, defaultEventLimit, stream.lastCount)
}

func TestListEventsRejectsBadLimit(t *testing.T) {
	h := NewEventsHandler(&stubStream{}, "auctions", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=zero", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListEventsStreamFailure(t *testing.T) {
	h := NewEventsHandler(&stubStream{err: errors.New("stream gone")}, "auctions", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
