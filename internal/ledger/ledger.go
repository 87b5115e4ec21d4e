// Package ledger owns the collection of auction records, enforces the
// lifecycle state machine (open -> sold, open -> cancelled), and executes
// settlement against the external asset-transfer and payment collaborators.
//
// The ledger is authoritative in memory. Each record carries its own lock, so
// settlement on one auction never contends with operations on another; the
// arena map itself is guarded separately and only for lookup/insert.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/pricing"
)

// feeDenominator converts basis points to a fraction.
const feeDenominator = 10_000

// maxFeeBps caps the configurable platform fee at 10%.
const maxFeeBps = 1_000

// EventChannel is the pub/sub channel auction events are published on.
const EventChannel = "auctions"

// Config holds the engine's administrative parameters. PlatformFeeBps and the
// duration bounds may be changed at runtime; changes never retroactively
// invalidate existing records.
type Config struct {
	MinDuration    time.Duration
	MaxDuration    time.Duration
	PlatformFeeBps int64
	FeeRecipient   common.Address
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.MinDuration < time.Second {
		return fmt.Errorf("ledger: min duration must be at least 1s, got %s", c.MinDuration)
	}
	if c.MaxDuration < c.MinDuration {
		return fmt.Errorf("ledger: max duration %s below min duration %s", c.MaxDuration, c.MinDuration)
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > maxFeeBps {
		return fmt.Errorf("ledger: platform fee must be 0-%d bps, got %d", maxFeeBps, c.PlatformFeeBps)
	}
	return nil
}

// CreateParams carries the caller-supplied inputs for a new auction.
type CreateParams struct {
	Seller     common.Address
	Asset      domain.AssetRef
	StartPrice *big.Int
	FloorPrice *big.Int
	Duration   time.Duration
}

// entry is one arena slot. The entry mutex is the serialization point for the
// record's status transition: "check open, then terminate" is atomic under it.
type entry struct {
	mu sync.Mutex
	a  domain.Auction
}

// Ledger is the auction settlement engine.
type Ledger struct {
	mu      sync.RWMutex
	entries map[domain.AuctionID]*entry
	nextID  uint64

	cfgMu  sync.RWMutex
	cfg    Config
	paused atomic.Bool

	assets   domain.AssetTransferor
	payments domain.PaymentMover

	// Optional collaborators; nil disables the concern.
	store  domain.AuctionStore
	audit  domain.AuditStore
	bus    domain.SignalBus
	prices domain.PriceCache

	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger with the required collaborators. Optional concerns
// (persistence, audit, events, price cache) are attached with the With*
// methods before use.
func New(cfg Config, assets domain.AssetTransferor, payments domain.PaymentMover, logger *slog.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		entries:  make(map[domain.AuctionID]*entry),
		cfg:      cfg,
		assets:   assets,
		payments: payments,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      time.Now,
	}, nil
}

// WithStore attaches write-through persistence.
func (l *Ledger) WithStore(s domain.AuctionStore) *Ledger {
	l.store = s
	return l
}

// WithAudit attaches the append-only audit log.
func (l *Ledger) WithAudit(a domain.AuditStore) *Ledger {
	l.audit = a
	return l
}

// WithSignalBus attaches event publishing.
func (l *Ledger) WithSignalBus(b domain.SignalBus) *Ledger {
	l.bus = b
	return l
}

// WithPriceCache attaches the advisory clearing-price cache.
func (l *Ledger) WithPriceCache(p domain.PriceCache) *Ledger {
	l.prices = p
	return l
}

// WithClock overrides the time source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Load rebuilds the in-memory arena from the store: open auctions become live
// entries and the id sequence resumes past the highest persisted id. Must be
// called before serving traffic when a store is attached.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	open, err := l.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load open auctions: %w", err)
	}
	maxID, err := l.store.MaxID(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load max id: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range open {
		l.entries[a.ID] = &entry{a: a}
	}
	l.nextID = maxID

	l.logger.InfoContext(ctx, "ledger: loaded from store",
		slog.Int("open_auctions", len(open)),
		slog.Uint64("next_id", maxID+1),
	)
	return nil
}

// CreateAuction validates parameters, verifies the seller has authorized the
// engine to move the asset, and stores a new open record. No asset or fund
// movement happens at creation.
func (l *Ledger) CreateAuction(ctx context.Context, p CreateParams) (domain.AuctionID, error) {
	if l.paused.Load() {
		return 0, domain.ErrEnginePaused
	}

	l.cfgMu.RLock()
	minDur, maxDur := l.cfg.MinDuration, l.cfg.MaxDuration
	l.cfgMu.RUnlock()

	if p.StartPrice == nil || p.FloorPrice == nil ||
		p.StartPrice.Sign() <= 0 || p.FloorPrice.Sign() < 0 ||
		p.StartPrice.Cmp(p.FloorPrice) <= 0 {
		return 0, fmt.Errorf("%w: start price must exceed floor price", domain.ErrInvalidAuctionParams)
	}
	if p.Duration < minDur || p.Duration > maxDur {
		return 0, fmt.Errorf("%w: duration %s outside [%s, %s]",
			domain.ErrInvalidAuctionParams, p.Duration, minDur, maxDur)
	}

	step, err := pricing.DeriveStep(p.StartPrice, p.FloorPrice, p.Duration)
	if err != nil {
		return 0, err
	}

	ok, err := l.assets.IsAuthorized(ctx, p.Asset, p.Seller)
	if err != nil {
		return 0, fmt.Errorf("ledger: authorization check: %w", err)
	}
	if !ok {
		return 0, domain.ErrAssetNotAuthorized
	}

	now := l.now().UTC()

	l.mu.Lock()
	l.nextID++
	id := domain.AuctionID(l.nextID)
	a := domain.Auction{
		ID:         id,
		Seller:     p.Seller,
		Asset:      p.Asset,
		StartPrice: new(big.Int).Set(p.StartPrice),
		FloorPrice: new(big.Int).Set(p.FloorPrice),
		PriceStep:  step,
		StartTime:  now,
		Duration:   p.Duration,
		Status:     domain.AuctionStatusOpen,
	}
	l.entries[id] = &entry{a: a}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Insert(ctx, a); err != nil {
			// Roll the allocation back so memory and store stay consistent and
			// the id sequence stays dense. A concurrent create may have taken
			// the next id already; only the newest allocation can be returned.
			l.mu.Lock()
			delete(l.entries, id)
			if l.nextID == uint64(id) {
				l.nextID--
			}
			l.mu.Unlock()
			return 0, fmt.Errorf("ledger: persist auction %d: %w", id, err)
		}
	}

	l.logAudit(ctx, domain.EventAuctionCreated, map[string]any{
		"auction_id":  uint64(id),
		"seller":      p.Seller.Hex(),
		"start_price": p.StartPrice.String(),
		"floor_price": p.FloorPrice.String(),
		"duration_s":  int64(p.Duration / time.Second),
	})
	l.publish(ctx, map[string]any{
		"event":      string(domain.EventAuctionCreated),
		"auction_id": uint64(id),
		"seller":     p.Seller.Hex(),
	})

	l.logger.InfoContext(ctx, "ledger: auction created",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("seller", p.Seller.Hex()),
		slog.String("start_price", p.StartPrice.String()),
		slog.String("floor_price", p.FloorPrice.String()),
	)
	return id, nil
}

// Get returns a snapshot of the auction record.
func (l *Ledger) Get(ctx context.Context, id domain.AuctionID) (domain.Auction, error) {
	e, err := l.lookup(id)
	if err != nil {
		// Terminated records loaded before a restart live only in the store.
		if l.store != nil {
			return l.store.GetByID(ctx, id)
		}
		return domain.Auction{}, err
	}
	e.mu.Lock()
	a := e.a
	e.mu.Unlock()
	return a, nil
}

// List returns record snapshots ordered by descending id. Since and Until
// filter on the auction start time. With a store attached the query runs
// against it, so terminated records from before a restart are included; the
// in-memory arena only serves the query when the engine runs store-less.
func (l *Ledger) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	if l.store != nil {
		return l.store.List(ctx, opts)
	}

	l.mu.RLock()
	all := make([]domain.Auction, 0, len(l.entries))
	for _, e := range l.entries {
		e.mu.Lock()
		a := e.a
		e.mu.Unlock()
		if opts.Since != nil && a.StartTime.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && a.StartTime.After(*opts.Until) {
			continue
		}
		all = append(all, a)
	}
	l.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return nil, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// Count reports the total number of auction records ever created, including
// terminated records that predate the current process.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	if l.store != nil {
		return l.store.Count(ctx)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.entries)), nil
}

// CurrentPriceOf returns the clearing price of an open auction at the time of
// the call. A cached price is served when present; freshness is bounded by the
// cache TTL, and settlement always recomputes from the record, so a stale
// read can never change what a buyer pays.
func (l *Ledger) CurrentPriceOf(ctx context.Context, id domain.AuctionID) (*big.Int, error) {
	if l.paused.Load() {
		return nil, domain.ErrEnginePaused
	}

	e, err := l.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	a := e.a
	e.mu.Unlock()

	if l.prices != nil && a.Status == domain.AuctionStatusOpen {
		if cached, _, cacheErr := l.prices.GetPrice(ctx, id); cacheErr == nil {
			return cached, nil
		}
	}

	price, err := pricing.CurrentPrice(a, l.now().UTC())
	if err != nil {
		return nil, err
	}

	if l.prices != nil {
		if cacheErr := l.prices.SetPrice(ctx, id, price, l.now().UTC()); cacheErr != nil {
			l.logger.WarnContext(ctx, "ledger: price cache set failed",
				slog.Uint64("auction_id", uint64(id)),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return price, nil
}

// Buy settles an open auction for the buyer at the current clearing price.
//
// The status flip to sold happens under the entry lock before any external
// call, so a concurrent Buy or Cancel on the same id observes a terminated
// record. The flip is undone in exactly one case: the asset transfer itself
// fails, meaning the sale did not occur and no funds have moved. A payment
// failure after the asset moved is surfaced as a *domain.PaymentError and is
// never rolled back here.
func (l *Ledger) Buy(ctx context.Context, id domain.AuctionID, buyer common.Address, offered *big.Int, pool domain.PaymentRef) (domain.Receipt, error) {
	if l.paused.Load() {
		return domain.Receipt{}, domain.ErrEnginePaused
	}
	if offered == nil || offered.Sign() < 0 {
		return domain.Receipt{}, fmt.Errorf("%w: offered amount missing", domain.ErrInsufficientPayment)
	}

	e, err := l.lookup(id)
	if err != nil {
		return domain.Receipt{}, err
	}

	now := l.now().UTC()

	// Atomic check-and-terminate: everything between Lock and Unlock decides
	// the single winner among concurrent settlement attempts.
	e.mu.Lock()
	if e.a.Status != domain.AuctionStatusOpen {
		e.mu.Unlock()
		return domain.Receipt{}, domain.ErrAuctionTerminated
	}
	price, err := pricing.CurrentPrice(e.a, now)
	if err != nil {
		e.mu.Unlock()
		return domain.Receipt{}, err
	}
	if offered.Cmp(price) < 0 {
		e.mu.Unlock()
		return domain.Receipt{}, fmt.Errorf("%w: offered %s, current price %s",
			domain.ErrInsufficientPayment, offered.String(), price.String())
	}
	seller := e.a.Seller
	asset := e.a.Asset
	e.a.Status = domain.AuctionStatusSold
	closedAt := now
	e.a.ClosedAt = &closedAt
	e.mu.Unlock()

	// Asset moves first. If the collaborator rejects it (authorization revoked
	// or asset gone out of band) the sale did not happen: revert to open.
	if err := l.assets.Transfer(ctx, asset, seller, buyer); err != nil {
		e.mu.Lock()
		e.a.Status = domain.AuctionStatusOpen
		e.a.ClosedAt = nil
		e.mu.Unlock()

		l.logAudit(ctx, domain.EventAssetTransferFailed, map[string]any{
			"auction_id": uint64(id),
			"buyer":      buyer.Hex(),
			"error":      err.Error(),
		})
		l.logger.WarnContext(ctx, "ledger: asset transfer failed, auction reopened",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("buyer", buyer.Hex()),
			slog.String("error", err.Error()),
		)
		return domain.Receipt{}, &domain.AssetTransferError{AuctionID: id, Err: err}
	}

	l.persistTransition(ctx, id, domain.AuctionStatusSold, closedAt)

	l.cfgMu.RLock()
	feeBps := l.cfg.PlatformFeeBps
	feeRecipient := l.cfg.FeeRecipient
	l.cfgMu.RUnlock()

	// fee = price * bps / 10000, truncating; proceeds absorb the remainder so
	// fee + proceeds == price exactly.
	fee := new(big.Int).Mul(price, big.NewInt(feeBps))
	fee.Quo(fee, big.NewInt(feeDenominator))
	proceeds := new(big.Int).Sub(price, fee)

	if err := l.payments.Pay(ctx, pool, feeRecipient, fee); err != nil {
		return domain.Receipt{}, l.paymentFailure(ctx, id, domain.StageFeePayment, err)
	}
	if err := l.payments.Pay(ctx, pool, seller, proceeds); err != nil {
		return domain.Receipt{}, l.paymentFailure(ctx, id, domain.StageSellerPayout, err)
	}

	refund := new(big.Int).Sub(offered, price)
	if refund.Sign() > 0 {
		if err := l.payments.Pay(ctx, pool, buyer, refund); err != nil {
			return domain.Receipt{}, l.paymentFailure(ctx, id, domain.StageRefund, err)
		}
	}

	receipt := domain.Receipt{
		ID:             uuid.New().String(),
		AuctionID:      id,
		Buyer:          buyer,
		PricePaid:      price,
		Fee:            fee,
		SellerProceeds: proceeds,
		Refund:         refund,
		SoldAt:         closedAt,
	}

	l.invalidatePrice(ctx, id)
	l.logAudit(ctx, domain.EventAuctionSold, map[string]any{
		"auction_id": uint64(id),
		"receipt_id": receipt.ID,
		"buyer":      buyer.Hex(),
		"price_paid": price.String(),
		"fee":        fee.String(),
		"proceeds":   proceeds.String(),
		"refund":     refund.String(),
	})
	l.publish(ctx, map[string]any{
		"event":      string(domain.EventAuctionSold),
		"auction_id": uint64(id),
		"buyer":      buyer.Hex(),
		"price_paid": price.String(),
	})

	l.logger.InfoContext(ctx, "ledger: auction sold",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("buyer", buyer.Hex()),
		slog.String("price_paid", price.String()),
		slog.String("fee", fee.String()),
	)
	return receipt, nil
}

// Cancel terminates an open auction. Only the seller may cancel, and only
// before settlement; nothing moves because nothing was escrowed.
func (l *Ledger) Cancel(ctx context.Context, id domain.AuctionID, caller common.Address) error {
	if l.paused.Load() {
		return domain.ErrEnginePaused
	}

	e, err := l.lookup(id)
	if err != nil {
		return err
	}

	now := l.now().UTC()

	e.mu.Lock()
	if e.a.Seller != caller {
		e.mu.Unlock()
		return domain.ErrNotSeller
	}
	if e.a.Status != domain.AuctionStatusOpen {
		e.mu.Unlock()
		return domain.ErrAuctionTerminated
	}
	e.a.Status = domain.AuctionStatusCancelled
	e.a.ClosedAt = &now
	e.mu.Unlock()

	l.persistTransition(ctx, id, domain.AuctionStatusCancelled, now)
	l.invalidatePrice(ctx, id)
	l.logAudit(ctx, domain.EventAuctionCancelled, map[string]any{
		"auction_id": uint64(id),
		"seller":     caller.Hex(),
	})
	l.publish(ctx, map[string]any{
		"event":      string(domain.EventAuctionCancelled),
		"auction_id": uint64(id),
	})

	l.logger.InfoContext(ctx, "ledger: auction cancelled",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("seller", caller.Hex()),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Administrative surface
// ---------------------------------------------------------------------------

// SetPlatformFee updates the platform fee. Applies to settlements from now on.
func (l *Ledger) SetPlatformFee(bps int64) error {
	if bps < 0 || bps > maxFeeBps {
		return fmt.Errorf("ledger: platform fee must be 0-%d bps, got %d", maxFeeBps, bps)
	}
	l.cfgMu.Lock()
	l.cfg.PlatformFeeBps = bps
	l.cfgMu.Unlock()
	l.logger.Info("ledger: platform fee updated", slog.Int64("bps", bps))
	return nil
}

// SetDurationBounds updates the accepted duration range for new auctions.
// Existing records are not re-validated.
func (l *Ledger) SetDurationBounds(min, max time.Duration) error {
	if min < time.Second || max < min {
		return fmt.Errorf("ledger: invalid duration bounds [%s, %s]", min, max)
	}
	l.cfgMu.Lock()
	l.cfg.MinDuration = min
	l.cfg.MaxDuration = max
	l.cfgMu.Unlock()
	l.logger.Info("ledger: duration bounds updated",
		slog.Duration("min", min),
		slog.Duration("max", max),
	)
	return nil
}

// Pause rejects all engine operations until Resume.
func (l *Ledger) Pause() {
	l.paused.Store(true)
	l.logger.Info("ledger: paused")
}

// Resume lifts a pause.
func (l *Ledger) Resume() {
	l.paused.Store(false)
	l.logger.Info("ledger: resumed")
}

// Paused reports the pause state.
func (l *Ledger) Paused() bool {
	return l.paused.Load()
}

// Config returns a snapshot of the administrative parameters.
func (l *Ledger) Config() Config {
	l.cfgMu.RLock()
	defer l.cfgMu.RUnlock()
	return l.cfg
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (l *Ledger) lookup(id domain.AuctionID) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return e, nil
}

// paymentFailure records and wraps a mid-settlement payment failure. The
// asset has already moved; this is a reportable inconsistency, not a retry.
func (l *Ledger) paymentFailure(ctx context.Context, id domain.AuctionID, stage domain.SettlementStage, err error) error {
	l.logAudit(ctx, domain.EventSettlementInconsistency, map[string]any{
		"auction_id": uint64(id),
		"stage":      string(stage),
		"error":      err.Error(),
	})
	l.publish(ctx, map[string]any{
		"event":      string(domain.EventSettlementInconsistency),
		"auction_id": uint64(id),
		"stage":      string(stage),
	})
	l.logger.ErrorContext(ctx, "ledger: payment failed after asset transfer",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	)
	return &domain.PaymentError{AuctionID: id, Stage: stage, Err: err}
}

func (l *Ledger) persistTransition(ctx context.Context, id domain.AuctionID, to domain.AuctionStatus, closedAt time.Time) {
	if l.store == nil {
		return
	}
	if err := l.store.UpdateStatus(ctx, id, domain.AuctionStatusOpen, to, closedAt); err != nil {
		// Memory is authoritative mid-settlement; surface via log + audit and
		// leave reconciliation to the operator.
		l.logger.ErrorContext(ctx, "ledger: persist status transition failed",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		l.logAudit(ctx, domain.EventPersistFailed, map[string]any{
			"auction_id": uint64(id),
			"to":         string(to),
			"error":      err.Error(),
		})
	}
}

func (l *Ledger) invalidatePrice(ctx context.Context, id domain.AuctionID) {
	if l.prices == nil {
		return
	}
	if err := l.prices.Invalidate(ctx, id); err != nil {
		l.logger.WarnContext(ctx, "ledger: price cache invalidate failed",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) logAudit(ctx context.Context, event domain.EventType, detail map[string]any) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Log(ctx, event, detail); err != nil {
		l.logger.WarnContext(ctx, "ledger: audit log failed",
			slog.String("event", string(event)),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Ledger) publish(ctx context.Context, payload map[string]any) {
	if l.bus == nil {
		return
	}
	data, _ := json.Marshal(payload)
	if err := l.bus.Publish(ctx, EventChannel, data); err != nil {
		l.logger.WarnContext(ctx, "ledger: publish event failed",
			slog.String("error", err.Error()),
		)
	}
	if err := l.bus.StreamAppend(ctx, EventChannel, data); err != nil {
		l.logger.WarnContext(ctx, "ledger: stream append failed",
			slog.String("error", err.Error()),
		)
	}
}
