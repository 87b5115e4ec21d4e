package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
)

// stubAdminLedger implements AdminLedger with canned responses.
type stubAdminLedger struct {
	cfg    ledger.Config
	paused bool
}

func (s *stubAdminLedger) SetPlatformFee(int64) error                 { return nil }
func (s *stubAdminLedger) SetDurationBounds(_, _ time.Duration) error { return nil }
func (s *stubAdminLedger) Pause()                                     { s.paused = true }
func (s *stubAdminLedger) Resume()                                    { s.paused = false }
func (s *stubAdminLedger) Paused() bool                               { return s.paused }
func (s *stubAdminLedger) Config() ledger.Config                      { return s.cfg }

// stubAuditLister records the opts it was called with.
type stubAuditLister struct {
	entries  []domain.AuditEntry
	err      error
	lastOpts domain.ListOpts
}

func (s *stubAuditLister) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.lastOpts = opts
	return s.entries, s.err
}

func TestGetAuditReturnsEntries(t *testing.T) {
	audit := &stubAuditLister{
		entries: []domain.AuditEntry{
			{ID: 2, Event: domain.EventAuctionSold, Detail: map[string]any{"auction_id": float64(9)}},
			{ID: 1, Event: domain.EventAuctionCreated},
		},
	}
	h := NewAdminHandler(&stubAdminLedger{}, audit, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit?limit=25&offset=5", nil)
	rec := httptest.NewRecorder()
	h.GetAudit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []domain.AuditEntry `json:"entries"`
		Limit   int                 `json:"limit"`
		Offset  int                 `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, domain.EventAuctionSold, resp.Entries[0].Event)
	assert.Equal(t, 25, audit.lastOpts.Limit)
	assert.Equal(t, 5, audit.lastOpts.Offset)
}

func TestGetAuditWithoutStore(t *testing.T) {
	h := NewAdminHandler(&stubAdminLedger{}, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	rec := httptest.NewRecorder()
	h.GetAudit(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
