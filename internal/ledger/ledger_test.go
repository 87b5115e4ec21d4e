package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
)

var (
	seller       = common.HexToAddress("0x1111111111111111111111111111111111111111")
	buyer        = common.HexToAddress("0x2222222222222222222222222222222222222222")
	feeRecipient = common.HexToAddress("0x3333333333333333333333333333333333333333")
	stranger     = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type transferCall struct {
	ref      domain.AssetRef
	from, to common.Address
}

// fakeAssets implements domain.AssetTransferor in memory.
type fakeAssets struct {
	mu          sync.Mutex
	authorized  bool
	transferErr error
	transfers   []transferCall
}

func (f *fakeAssets) Transfer(_ context.Context, ref domain.AssetRef, from, to common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{ref: ref, from: from, to: to})
	return nil
}

func (f *fakeAssets) IsAuthorized(context.Context, domain.AssetRef, common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

type payCall struct {
	pool   domain.PaymentRef
	to     common.Address
	amount *big.Int
}

// fakePayments implements domain.PaymentMover in memory, optionally failing
// disbursements to a specific recipient.
type fakePayments struct {
	mu     sync.Mutex
	failTo map[common.Address]error
	calls  []payCall
}

func (f *fakePayments) Pay(_ context.Context, pool domain.PaymentRef, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[to]; ok {
		return err
	}
	f.calls = append(f.calls, payCall{pool: pool, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (f *fakePayments) paidTo(to common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := new(big.Int)
	for _, c := range f.calls {
		if c.to == to {
			total.Add(total, c.amount)
		}
	}
	return total
}

func (f *fakePayments) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeStore implements domain.AuctionStore in memory, optionally failing the
// next Insert.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[domain.AuctionID]domain.Auction
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[domain.AuctionID]domain.Auction)}
}

func (f *fakeStore) Insert(_ context.Context, a domain.Auction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		err := f.insertErr
		f.insertErr = nil
		return err
	}
	f.rows[a.ID] = a
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id domain.AuctionID, from, to domain.AuctionStatus, closedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok || a.Status != from {
		return domain.ErrAuctionNotFound
	}
	a.Status = to
	a.ClosedAt = &closedAt
	f.rows[id] = a
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id domain.AuctionID) (domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return a, nil
}

func (f *fakeStore) ListOpen(_ context.Context) ([]domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []domain.Auction
	for _, a := range f.rows {
		if a.Status == domain.AuctionStatusOpen {
			open = append(open, a)
		}
	}
	return open, nil
}

func (f *fakeStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]domain.Auction, 0, len(f.rows))
	for _, a := range f.rows {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

func (f *fakeStore) MaxID(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max uint64
	for id := range f.rows {
		if uint64(id) > max {
			max = uint64(id)
		}
	}
	return max, nil
}

func (f *fakeStore) ListTerminatedBefore(_ context.Context, before time.Time) ([]domain.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Auction
	for _, a := range f.rows {
		if a.Status != domain.AuctionStatusOpen && a.ClosedAt != nil && a.ClosedAt.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakePriceCache implements domain.PriceCache in memory, counting writes.
type fakePriceCache struct {
	mu     sync.Mutex
	prices map[domain.AuctionID]*big.Int
	sets   int
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[domain.AuctionID]*big.Int)}
}

func (f *fakePriceCache) SetPrice(_ context.Context, id domain.AuctionID, price *big.Int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[id] = new(big.Int).Set(price)
	f.sets++
	return nil
}

func (f *fakePriceCache) GetPrice(_ context.Context, id domain.AuctionID) (*big.Int, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[id]
	if !ok {
		return nil, time.Time{}, domain.ErrAuctionNotFound
	}
	return new(big.Int).Set(p), time.Time{}, nil
}

func (f *fakePriceCache) Invalidate(_ context.Context, id domain.AuctionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, id)
	return nil
}

func (f *fakePriceCache) cached(id domain.AuctionID) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[id]
}

func (f *fakePriceCache) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func testConfig() Config {
	return Config{
		MinDuration:    time.Minute,
		MaxDuration:    7 * 24 * time.Hour,
		PlatformFeeBps: 250,
		FeeRecipient:   feeRecipient,
	}
}

func newTestLedger(t *testing.T) (*Ledger, *fakeClock, *fakeAssets, *fakePayments) {
	t.Helper()

	clock := newFakeClock()
	assets := &fakeAssets{authorized: true}
	payments := &fakePayments{}
	logger := slog.New(slog.DiscardHandler)

	l, err := New(testConfig(), assets, payments, logger)
	require.NoError(t, err)
	l.WithClock(clock.Now)
	return l, clock, assets, payments
}

func createTestAuction(t *testing.T, l *Ledger) domain.AuctionID {
	t.Helper()

	id, err := l.CreateAuction(context.Background(), CreateParams{
		Seller:     seller,
		Asset:      domain.AssetRef{Contract: common.HexToAddress("0xabc0000000000000000000000000000000000abc"), ItemID: big.NewInt(7), Unique: true},
		StartPrice: big.NewInt(2_000_000),
		FloorPrice: big.NewInt(500_000),
		Duration:   24 * time.Hour,
	})
	require.NoError(t, err)
	return id
}

func TestCreateAuctionAssignsSequentialIDs(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	first := createTestAuction(t, l)
	second := createTestAuction(t, l)
	assert.Equal(t, domain.AuctionID(1), first)
	assert.Equal(t, domain.AuctionID(2), second)

	a, err := l.Get(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusOpen, a.Status)
	assert.Equal(t, int64(17), a.PriceStep.Int64())
}

func TestCreateAuctionValidation(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	base := CreateParams{
		Seller:     seller,
		StartPrice: big.NewInt(2_000_000),
		FloorPrice: big.NewInt(500_000),
		Duration:   24 * time.Hour,
	}

	p := base
	p.StartPrice = big.NewInt(500_000) // equal to floor
	_, err := l.CreateAuction(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidAuctionParams)

	p = base
	p.FloorPrice = big.NewInt(3_000_000) // inverted
	_, err = l.CreateAuction(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidAuctionParams)

	p = base
	p.Duration = 10 * time.Second // below min
	_, err = l.CreateAuction(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidAuctionParams)

	p = base
	p.Duration = 30 * 24 * time.Hour // above max
	_, err = l.CreateAuction(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidAuctionParams)
}

func TestCreateAuctionRequiresAuthorization(t *testing.T) {
	l, _, assets, _ := newTestLedger(t)
	assets.authorized = false

	_, err := l.CreateAuction(context.Background(), CreateParams{
		Seller:     seller,
		StartPrice: big.NewInt(2_000_000),
		FloorPrice: big.NewInt(500_000),
		Duration:   24 * time.Hour,
	})
	assert.ErrorIs(t, err, domain.ErrAssetNotAuthorized)
}

func TestCurrentPriceOf(t *testing.T) {
	l, clock, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	price, err := l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), price.Int64())

	clock.Advance(12 * time.Hour)
	price, err = l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000-17*43200), price.Int64())

	clock.Advance(36 * time.Hour)
	price, err = l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), price.Int64())

	_, err = l.CurrentPriceOf(ctx, domain.AuctionID(99))
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestBuyExactPaymentSkipsRefund(t *testing.T) {
	l, _, assets, payments := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	receipt, err := l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	require.NoError(t, err)

	assert.Equal(t, id, receipt.AuctionID)
	assert.Equal(t, buyer, receipt.Buyer)
	assert.Equal(t, int64(2_000_000), receipt.PricePaid.Int64())
	// 2_000_000 * 250 / 10000
	assert.Equal(t, int64(50_000), receipt.Fee.Int64())
	assert.Equal(t, int64(1_950_000), receipt.SellerProceeds.Int64())
	assert.Equal(t, int64(0), receipt.Refund.Int64())

	// Fee conservation.
	sum := new(big.Int).Add(receipt.Fee, receipt.SellerProceeds)
	assert.Zero(t, sum.Cmp(receipt.PricePaid))

	// Exactly two disbursements: fee and proceeds, no refund call.
	assert.Equal(t, 2, payments.callCount())
	assert.Equal(t, int64(50_000), payments.paidTo(feeRecipient).Int64())
	assert.Equal(t, int64(1_950_000), payments.paidTo(seller).Int64())

	// Exactly one asset transfer, seller -> buyer.
	require.Len(t, assets.transfers, 1)
	assert.Equal(t, seller, assets.transfers[0].from)
	assert.Equal(t, buyer, assets.transfers[0].to)

	a, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusSold, a.Status)
	require.NotNil(t, a.ClosedAt)
}

func TestBuyRefundsSurplus(t *testing.T) {
	l, clock, _, payments := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	clock.Advance(12 * time.Hour)
	price := int64(2_000_000 - 17*43200)

	receipt, err := l.Buy(ctx, id, buyer, big.NewInt(price+80_000), "pool-1")
	require.NoError(t, err)

	assert.Equal(t, price, receipt.PricePaid.Int64())
	assert.Equal(t, int64(80_000), receipt.Refund.Int64())
	assert.Equal(t, int64(80_000), payments.paidTo(buyer).Int64())
	assert.Equal(t, 3, payments.callCount())
}

func TestBuyInsufficientPayment(t *testing.T) {
	l, _, _, payments := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	_, err := l.Buy(ctx, id, buyer, big.NewInt(1_999_999), "pool-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Zero(t, payments.callCount())

	a, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusOpen, a.Status)
}

func TestBuyAfterDurationAtFloor(t *testing.T) {
	l, clock, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	// Far past the duration: still open, purchasable at the floor forever.
	clock.Advance(30 * 24 * time.Hour)

	receipt, err := l.Buy(ctx, id, buyer, big.NewInt(500_000), "pool-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), receipt.PricePaid.Int64())
}

func TestBuyTerminatedAndUnknown(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	_, err := l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	require.NoError(t, err)

	_, err = l.Buy(ctx, id, stranger, big.NewInt(2_000_000), "pool-2")
	assert.ErrorIs(t, err, domain.ErrAuctionTerminated)

	_, err = l.Buy(ctx, domain.AuctionID(42), buyer, big.NewInt(1), "pool-3")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestBuyAssetTransferFailureReopens(t *testing.T) {
	l, _, assets, payments := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	assets.transferErr = errors.New("approval revoked")

	_, err := l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	var transferErr *domain.AssetTransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, id, transferErr.AuctionID)
	assert.Zero(t, payments.callCount(), "no funds move when the asset does not")

	a, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusOpen, a.Status)
	assert.Nil(t, a.ClosedAt)

	// The auction is live again; a later attempt succeeds.
	assets.transferErr = nil
	_, err = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	require.NoError(t, err)
}

func TestBuyPaymentFailureIsFatal(t *testing.T) {
	l, _, _, payments := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	payments.failTo = map[common.Address]error{seller: errors.New("vault rejected")}

	_, err := l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	var payErr *domain.PaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, id, payErr.AuctionID)
	assert.Equal(t, domain.StageSellerPayout, payErr.Stage)

	// The asset moved; the sale is NOT rolled back.
	a, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusSold, a.Status)
}

func TestCancelSemantics(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	assert.ErrorIs(t, l.Cancel(ctx, id, stranger), domain.ErrNotSeller)

	require.NoError(t, l.Cancel(ctx, id, seller))

	a, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusCancelled, a.Status)

	assert.ErrorIs(t, l.Cancel(ctx, id, seller), domain.ErrAuctionTerminated)

	_, err = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool-1")
	assert.ErrorIs(t, err, domain.ErrAuctionTerminated)

	_, err = l.CurrentPriceOf(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAuctionTerminated)
}

func TestConcurrentBuysSingleSettlement(t *testing.T) {
	l, _, assets, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), domain.PaymentRef("pool"))
		}(i)
	}
	wg.Wait()

	var wins, terminated int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAuctionTerminated):
			terminated++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, terminated)
	assert.Len(t, assets.transfers, 1, "asset moved exactly once")
}

func TestConcurrentBuyAndCancel(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := createTestAuction(t, l)

		var wg sync.WaitGroup
		var buyErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, buyErr = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool")
		}()
		go func() {
			defer wg.Done()
			cancelErr = l.Cancel(ctx, id, seller)
		}()
		wg.Wait()

		// Exactly one of the two operations wins.
		assert.True(t, (buyErr == nil) != (cancelErr == nil),
			"buy err=%v cancel err=%v", buyErr, cancelErr)
	}
}

func TestPausedGate(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	id := createTestAuction(t, l)

	l.Pause()
	assert.True(t, l.Paused())

	_, err := l.CreateAuction(ctx, CreateParams{})
	assert.ErrorIs(t, err, domain.ErrEnginePaused)
	_, err = l.CurrentPriceOf(ctx, id)
	assert.ErrorIs(t, err, domain.ErrEnginePaused)
	_, err = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool")
	assert.ErrorIs(t, err, domain.ErrEnginePaused)
	assert.ErrorIs(t, l.Cancel(ctx, id, seller), domain.ErrEnginePaused)

	l.Resume()
	_, err = l.CurrentPriceOf(ctx, id)
	assert.NoError(t, err)
}

func TestAdminSetters(t *testing.T) {
	l, _, _, _ := newTestLedger(t)

	assert.Error(t, l.SetPlatformFee(1_001))
	assert.Error(t, l.SetPlatformFee(-1))
	require.NoError(t, l.SetPlatformFee(0))
	assert.Equal(t, int64(0), l.Config().PlatformFeeBps)

	assert.Error(t, l.SetDurationBounds(time.Hour, time.Minute))
	require.NoError(t, l.SetDurationBounds(time.Minute, 48*time.Hour))
	cfg := l.Config()
	assert.Equal(t, time.Minute, cfg.MinDuration)
	assert.Equal(t, 48*time.Hour, cfg.MaxDuration)
}

func TestZeroFeeStillConserves(t *testing.T) {
	l, _, _, payments := newTestLedger(t)
	require.NoError(t, l.SetPlatformFee(0))
	ctx := context.Background()
	id := createTestAuction(t, l)

	receipt, err := l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool")
	require.NoError(t, err)
	assert.Equal(t, int64(0), receipt.Fee.Int64())
	assert.Equal(t, int64(2_000_000), receipt.SellerProceeds.Int64())
	assert.Equal(t, int64(2_000_000), payments.paidTo(seller).Int64())
}

func TestCreateAuctionReusesIDAfterPersistFailure(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	store := newFakeStore()
	l.WithStore(store)
	ctx := context.Background()

	store.insertErr = errors.New("connection reset")
	_, err := l.CreateAuction(ctx, CreateParams{
		Seller:     seller,
		StartPrice: big.NewInt(2_000_000),
		FloorPrice: big.NewInt(500_000),
		Duration:   24 * time.Hour,
	})
	require.Error(t, err)

	// The failed allocation left no trace.
	_, err = l.Get(ctx, domain.AuctionID(1))
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)

	// The id counter rolled back, so the sequence stays dense.
	id := createTestAuction(t, l)
	assert.Equal(t, domain.AuctionID(1), id)

	stored, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusOpen, stored.Status)
}

func TestCurrentPriceOfServesCachedValue(t *testing.T) {
	l, clock, _, _ := newTestLedger(t)
	cache := newFakePriceCache()
	l.WithPriceCache(cache)
	ctx := context.Background()
	id := createTestAuction(t, l)

	// First read misses, computes, and fills the cache.
	price, err := l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), price.Int64())
	assert.Equal(t, 1, cache.setCount())

	// While the entry is live the cached value is served without recompute.
	clock.Advance(time.Hour)
	price, err = l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), price.Int64())
	assert.Equal(t, 1, cache.setCount())

	// Once the entry expires out of the cache the price is recomputed at the
	// current clock and cached again.
	require.NoError(t, cache.Invalidate(ctx, id))
	price, err = l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000-17*3600), price.Int64())
	assert.Equal(t, 2, cache.setCount())
}

func TestSettlementInvalidatesCachedPrice(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	cache := newFakePriceCache()
	l.WithPriceCache(cache)
	ctx := context.Background()
	id := createTestAuction(t, l)

	_, err := l.CurrentPriceOf(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cache.cached(id))

	_, err = l.Buy(ctx, id, buyer, big.NewInt(2_000_000), "pool")
	require.NoError(t, err)
	assert.Nil(t, cache.cached(id), "terminated auctions must not serve a price")
}

func TestListIncludesRecordsFromBeforeRestart(t *testing.T) {
	l, _, assets, payments := newTestLedger(t)
	store := newFakeStore()
	l.WithStore(store)
	ctx := context.Background()

	sold := createTestAuction(t, l)
	_, err := l.Buy(ctx, sold, buyer, big.NewInt(2_000_000), "pool")
	require.NoError(t, err)
	open := createTestAuction(t, l)

	// A fresh engine on the same store only loads open records into memory,
	// but listing still surfaces the terminated history.
	l2, err := New(testConfig(), assets, payments, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	l2.WithStore(store)
	require.NoError(t, l2.Load(ctx))

	_, err = l2.Get(ctx, sold)
	require.NoError(t, err, "terminated record is readable through the store")

	all, err := l2.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, open, all[0].ID)
	assert.Equal(t, sold, all[1].ID)
	assert.Equal(t, domain.AuctionStatusSold, all[1].Status)

	total, err := l2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
