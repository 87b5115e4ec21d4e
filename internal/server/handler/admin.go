package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
)

// AdminLedger defines the administrative engine surface the admin handler
// requires.
type AdminLedger interface {
	SetPlatformFee(bps int64) error
	SetDurationBounds(min, max time.Duration) error
	Pause()
	Resume()
	Paused() bool
	Config() ledger.Config
}

// AuditLister provides read access to the audit log.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the administrative endpoints. The server mounts it
// behind API-key auth.
type AdminHandler struct {
	ledger AdminLedger
	audit  AuditLister
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given engine and logger.
// audit may be nil when the engine runs without an audit store.
func NewAdminHandler(l AdminLedger, audit AuditLister, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger: l,
		audit:  audit,
		logger: logger,
	}
}

// setFeeRequest is the JSON body of PUT /api/admin/fee.
type setFeeRequest struct {
	Bps int64 `json:"bps"`
}

// SetFee updates the platform fee applied to settlements from now on.
// PUT /api/admin/fee
func (h *AdminHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.ledger.SetPlatformFee(req.Bps); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "handler: platform fee updated",
		slog.Int64("bps", req.Bps),
	)
	writeJSON(w, http.StatusOK, map[string]any{"bps": req.Bps})
}

// setDurationBoundsRequest is the JSON body of PUT /api/admin/duration-bounds.
type setDurationBoundsRequest struct {
	MinSecs int64 `json:"min_secs"`
	MaxSecs int64 `json:"max_secs"`
}

// SetDurationBounds updates the accepted duration range for new auctions.
// PUT /api/admin/duration-bounds
func (h *AdminHandler) SetDurationBounds(w http.ResponseWriter, r *http.Request) {
	var req setDurationBoundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	min := time.Duration(req.MinSecs) * time.Second
	max := time.Duration(req.MaxSecs) * time.Second
	if err := h.ledger.SetDurationBounds(min, max); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "handler: duration bounds updated",
		slog.Int64("min_secs", req.MinSecs),
		slog.Int64("max_secs", req.MaxSecs),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"min_secs": req.MinSecs,
		"max_secs": req.MaxSecs,
	})
}

// Pause halts all engine operations until Resume.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.ledger.Pause()
	h.logger.InfoContext(r.Context(), "handler: engine paused")
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

// Resume lifts a pause.
// POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.ledger.Resume()
	h.logger.InfoContext(r.Context(), "handler: engine resumed")
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

// GetAudit returns audit log entries, newest first, with pagination and
// optional since/until time filtering.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetConfig returns the engine's current administrative parameters.
// GET /api/admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.ledger.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"min_duration_secs": int64(cfg.MinDuration / time.Second),
		"max_duration_secs": int64(cfg.MaxDuration / time.Second),
		"platform_fee_bps":  cfg.PlatformFeeBps,
		"fee_recipient":     cfg.FeeRecipient.Hex(),
		"paused":            h.ledger.Paused(),
	})
}
