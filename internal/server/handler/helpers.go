package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps an engine error to its HTTP status and writes it.
// Settlement collaborator failures surface as 502 so callers can tell an
// upstream fault from a rejected request.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var transferErr *domain.AssetTransferError
	var paymentErr *domain.PaymentError

	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		writeError(w, http.StatusNotFound, "auction not found")
	case errors.Is(err, domain.ErrInvalidAuctionParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientPayment):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrAuctionTerminated):
		writeError(w, http.StatusConflict, "auction already terminated")
	case errors.Is(err, domain.ErrNotSeller):
		writeError(w, http.StatusForbidden, "caller is not the seller")
	case errors.Is(err, domain.ErrAssetNotAuthorized):
		writeError(w, http.StatusConflict, "asset not authorized for transfer")
	case errors.Is(err, domain.ErrEnginePaused):
		writeError(w, http.StatusServiceUnavailable, "engine is paused")
	case errors.As(err, &transferErr):
		writeError(w, http.StatusBadGateway, transferErr.Error())
	case errors.As(err, &paymentErr):
		// The asset moved but a disbursement did not; the receipt is lost and
		// reconciliation is required. Do not mask this as a client error.
		logger.ErrorContext(r.Context(), "handler: settlement inconsistency",
			slog.Uint64("auction_id", uint64(paymentErr.AuctionID)),
			slog.String("stage", string(paymentErr.Stage)),
			slog.String("error", paymentErr.Error()),
		)
		writeError(w, http.StatusBadGateway, paymentErr.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}

	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &t
		}
	}

	return opts
}

// pathAuctionID extracts and parses the {id} path parameter using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathAuctionID(r *http.Request) (domain.AuctionID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return domain.AuctionID(n), true
}

// parseAmount parses a decimal string into a non-negative big integer.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// parseAddress validates and parses a hex address.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
