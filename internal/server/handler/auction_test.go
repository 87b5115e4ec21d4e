package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
)

// stubLedger implements AuctionLedger with canned responses for handler tests.
type stubLedger struct {
	createID  domain.AuctionID
	createErr error
	auction   domain.Auction
	getErr    error
	price     *big.Int
	priceErr  error
	receipt   domain.Receipt
	buyErr    error
	cancelErr error
	listErr   error
	total     int64

	lastCreate   ledger.CreateParams
	lastBuyID    domain.AuctionID
	lastListOpts domain.ListOpts
}

func (s *stubLedger) CreateAuction(_ context.Context, p ledger.CreateParams) (domain.AuctionID, error) {
	s.lastCreate = p
	return s.createID, s.createErr
}

func (s *stubLedger) Get(_ context.Context, _ domain.AuctionID) (domain.Auction, error) {
	return s.auction, s.getErr
}

func (s *stubLedger) List(_ context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.lastListOpts = opts
	return []domain.Auction{s.auction}, s.listErr
}

func (s *stubLedger) Count(_ context.Context) (int64, error) {
	return s.total, nil
}

func (s *stubLedger) CurrentPriceOf(_ context.Context, _ domain.AuctionID) (*big.Int, error) {
	return s.price, s.priceErr
}

func (s *stubLedger) Buy(_ context.Context, id domain.AuctionID, _ common.Address, _ *big.Int, _ domain.PaymentRef) (domain.Receipt, error) {
	s.lastBuyID = id
	return s.receipt, s.buyErr
}

func (s *stubLedger) Cancel(_ context.Context, _ domain.AuctionID, _ common.Address) error {
	return s.cancelErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestMux(h *AuctionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auctions", h.CreateAuction)
	mux.HandleFunc("GET /api/auctions", h.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", h.GetAuction)
	mux.HandleFunc("GET /api/auctions/{id}/price", h.GetPrice)
	mux.HandleFunc("POST /api/auctions/{id}/buy", h.Buy)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", h.Cancel)
	return mux
}

func TestCreateAuction(t *testing.T) {
	stub := &stubLedger{createID: 7}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	body := `{
		"seller": "0x1111111111111111111111111111111111111111",
		"contract": "0x2222222222222222222222222222222222222222",
		"unique": true,
		"item_id": "42",
		"start_price": "1000",
		"floor_price": "100",
		"duration_secs": 3600
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/auctions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7), resp["auction_id"])

	assert.Equal(t, "1000", stub.lastCreate.StartPrice.String())
	assert.Equal(t, "42", stub.lastCreate.Asset.ItemID.String())
	assert.Equal(t, time.Hour, stub.lastCreate.Duration)
}

func TestCreateAuctionRejectsBadAddress(t *testing.T) {
	stub := &stubLedger{}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	body := `{"seller": "not-an-address", "contract": "0x2222222222222222222222222222222222222222", "start_price": "10", "floor_price": "1", "duration_secs": 60}`
	req := httptest.NewRequest(http.MethodPost, "/api/auctions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAuctionsReportsTotal(t *testing.T) {
	stub := &stubLedger{
		auction: domain.Auction{ID: 3, Status: domain.AuctionStatusSold},
		total:   41,
	}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/auctions?limit=10&offset=20", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Auctions []domain.Auction `json:"auctions"`
		Total    int64            `json:"total"`
		Limit    int              `json:"limit"`
		Offset   int              `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Auctions, 1)
	assert.Equal(t, domain.AuctionID(3), resp.Auctions[0].ID)
	assert.Equal(t, int64(41), resp.Total)
	assert.Equal(t, 10, stub.lastListOpts.Limit)
	assert.Equal(t, 20, stub.lastListOpts.Offset)
}

func TestGetPriceNotFound(t *testing.T) {
	stub := &stubLedger{priceErr: domain.ErrAuctionNotFound}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/auctions/5/price", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuyReturnsReceipt(t *testing.T) {
	stub := &stubLedger{
		receipt: domain.Receipt{
			ID:             "r-1",
			AuctionID:      9,
			Buyer:          common.HexToAddress("0x3333333333333333333333333333333333333333"),
			PricePaid:      big.NewInt(500),
			Fee:            big.NewInt(12),
			SellerProceeds: big.NewInt(488),
			Refund:         big.NewInt(0),
			SoldAt:         time.Now().UTC(),
		},
	}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	body := `{"buyer": "0x3333333333333333333333333333333333333333", "offered": "500", "payment_ref": "pool-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auctions/9/buy", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AuctionID(9), stub.lastBuyID)

	var resp domain.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "r-1", resp.ID)
	assert.Equal(t, "488", resp.SellerProceeds.String())
}

func TestBuyErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient payment", domain.ErrInsufficientPayment, http.StatusPaymentRequired},
		{"already terminated", domain.ErrAuctionTerminated, http.StatusConflict},
		{"engine paused", domain.ErrEnginePaused, http.StatusServiceUnavailable},
		{"transfer failed", &domain.AssetTransferError{AuctionID: 9}, http.StatusBadGateway},
		{"payment failed", &domain.PaymentError{AuctionID: 9, Stage: domain.StageFeePayment}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubLedger{buyErr: tc.err}
			mux := newTestMux(NewAuctionHandler(stub, testLogger()))

			body := `{"buyer": "0x3333333333333333333333333333333333333333", "offered": "500", "payment_ref": "pool-1"}`
			req := httptest.NewRequest(http.MethodPost, "/api/auctions/9/buy", strings.NewReader(body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCancelNotSeller(t *testing.T) {
	stub := &stubLedger{cancelErr: domain.ErrNotSeller}
	mux := newTestMux(NewAuctionHandler(stub, testLogger()))

	body := `{"seller": "0x4444444444444444444444444444444444444444"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auctions/3/cancel", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
