package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
)

// AuctionLedger defines the engine operations the auction handler requires.
// It is declared locally so the handler package does not depend on the
// concrete engine beyond its parameter types.
type AuctionLedger interface {
	CreateAuction(ctx context.Context, p ledger.CreateParams) (domain.AuctionID, error)
	Get(ctx context.Context, id domain.AuctionID) (domain.Auction, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
	Count(ctx context.Context) (int64, error)
	CurrentPriceOf(ctx context.Context, id domain.AuctionID) (*big.Int, error)
	Buy(ctx context.Context, id domain.AuctionID, buyer common.Address, offered *big.Int, pool domain.PaymentRef) (domain.Receipt, error)
	Cancel(ctx context.Context, id domain.AuctionID, caller common.Address) error
}

// AuctionHandler serves the auction lifecycle HTTP endpoints.
type AuctionHandler struct {
	ledger AuctionLedger
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given engine and logger.
func NewAuctionHandler(l AuctionLedger, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		ledger: l,
		logger: logger,
	}
}

// createAuctionRequest is the JSON body of POST /api/auctions.
type createAuctionRequest struct {
	Seller       string `json:"seller"`
	Contract     string `json:"contract"`
	ItemID       string `json:"item_id,omitempty"`
	Unique       bool   `json:"unique"`
	StartPrice   string `json:"start_price"`
	FloorPrice   string `json:"floor_price"`
	DurationSecs int64  `json:"duration_secs"`
}

// CreateAuction opens a new descending-price listing.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	seller, ok := parseAddress(req.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return
	}
	contract, ok := parseAddress(req.Contract)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset contract address")
		return
	}
	startPrice, ok := parseAmount(req.StartPrice)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid start_price")
		return
	}
	floorPrice, ok := parseAmount(req.FloorPrice)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid floor_price")
		return
	}

	asset := domain.AssetRef{Contract: contract, Unique: req.Unique}
	if req.ItemID != "" {
		itemID, ok := parseAmount(req.ItemID)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		asset.ItemID = itemID
	}

	id, err := h.ledger.CreateAuction(r.Context(), ledger.CreateParams{
		Seller:     seller,
		Asset:      asset,
		StartPrice: startPrice,
		FloorPrice: floorPrice,
		Duration:   time.Duration(req.DurationSecs) * time.Second,
	})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"auction_id": uint64(id)})
}

// listAuctionsResponse wraps the list endpoint output with metadata.
type listAuctionsResponse struct {
	Auctions []domain.Auction `json:"auctions"`
	Total    int64            `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// ListAuctions returns auction records, newest first, with pagination. The
// query is store-backed, so records terminated before the last restart are
// included.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	auctions, err := h.ledger.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	total, err := h.ledger.Count(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listAuctionsResponse{
		Auctions: auctions,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetAuction returns a single auction record.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	a, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetPrice returns the current clearing price of an open auction.
// GET /api/auctions/{id}/price
func (h *AuctionHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	price, err := h.ledger.CurrentPriceOf(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": uint64(id),
		"price":      price.String(),
		"at":         time.Now().UTC().Format(time.RFC3339),
	})
}

// buyRequest is the JSON body of POST /api/auctions/{id}/buy.
type buyRequest struct {
	Buyer      string `json:"buyer"`
	Offered    string `json:"offered"`
	PaymentRef string `json:"payment_ref"`
}

// Buy settles an open auction at the current clearing price.
// POST /api/auctions/{id}/buy
func (h *AuctionHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	buyer, ok := parseAddress(req.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer address")
		return
	}
	offered, ok := parseAmount(req.Offered)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offered amount")
		return
	}
	if req.PaymentRef == "" {
		writeError(w, http.StatusBadRequest, "missing payment_ref")
		return
	}

	receipt, err := h.ledger.Buy(r.Context(), id, buyer, offered, domain.PaymentRef(req.PaymentRef))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// cancelRequest is the JSON body of POST /api/auctions/{id}/cancel.
type cancelRequest struct {
	Seller string `json:"seller"`
}

// Cancel terminates an open auction on behalf of its seller.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAuctionID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	seller, ok := parseAddress(req.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return
	}

	if err := h.ledger.Cancel(r.Context(), id, seller); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": uint64(id),
		"status":     string(domain.AuctionStatusCancelled),
	})
}
