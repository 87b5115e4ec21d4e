package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
	"github.com/vogeb-org/auctiond/internal/server"
	"github.com/vogeb-org/auctiond/internal/server/handler"
	"github.com/vogeb-org/auctiond/internal/server/ws"
)

// archiveLockTTL bounds how long an archive run may hold the distributed lock.
const archiveLockTTL = 10 * time.Minute

// ServerMode runs the HTTP + WebSocket API in front of the settlement engine.
// It blocks until the context is cancelled or a component fails.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: server mode requires server.enabled = true")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return a.runNotifierBridge(ctx, deps)
	})

	return g.Wait()
}

// ArchiveMode runs only the periodic archival loop. It is intended for a
// dedicated replica alongside one or more server-mode replicas.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires archive.enabled = true")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runArchiveLoop(ctx, deps)
	})
	return g.Wait()
}

// FullMode runs the API server and the archival loop in a single process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: full mode requires server.enabled = true")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return a.runNotifierBridge(ctx, deps)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// startHTTPServer builds the WebSocket hub, handlers, and HTTP server, and
// registers their goroutines on g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:     a.cfg.Mode,
		Channels: []string{ledger.EventChannel},
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Ledger, a.logger),
		Auctions: handler.NewAuctionHandler(deps.Ledger, a.logger),
		Admin:    handler.NewAdminHandler(deps.Ledger, deps.AuditStore, a.logger),
		Events:   handler.NewEventsHandler(deps.SignalBus, ledger.EventChannel, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runArchiveLoop periodically exports terminated auctions and old audit
// entries to object storage. A distributed lock keeps concurrent replicas from
// running the same export twice.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archive loop starting",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.runArchiveOnce(ctx, deps, retention)
		}
	}
}

// runArchiveOnce performs a single locked archival pass. Failures are logged,
// not fatal; the next tick retries.
func (a *App) runArchiveOnce(ctx context.Context, deps *Dependencies, retention time.Duration) {
	unlock, err := deps.LockManager.Acquire(ctx, "archive", archiveLockTTL)
	if err != nil {
		a.logger.InfoContext(ctx, "archive run skipped",
			slog.String("reason", err.Error()),
		)
		return
	}
	defer unlock()

	before := time.Now().UTC().Add(-retention)
	result, err := deps.Archiver.Archive(ctx, before)
	if err != nil {
		a.logger.ErrorContext(ctx, "archive run failed",
			slog.String("error", err.Error()),
		)
		return
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int("auctions", result.Auctions),
		slog.Int("audit_entries", result.AuditEntries),
		slog.Int("objects", len(result.Objects)),
	)
}

// busEvent is the JSON envelope the engine publishes on the signal bus.
type busEvent struct {
	Event     domain.EventType `json:"event"`
	AuctionID uint64           `json:"auction_id"`
	Buyer     string           `json:"buyer,omitempty"`
	PricePaid string           `json:"price_paid,omitempty"`
	Stage     string           `json:"stage,omitempty"`
}

// runNotifierBridge forwards engine events from the signal bus to the
// configured notification channels. It exits when the context is cancelled.
func (a *App) runNotifierBridge(ctx context.Context, deps *Dependencies) error {
	msgs, err := deps.SignalBus.Subscribe(ctx, ledger.EventChannel)
	if err != nil {
		return fmt.Errorf("app: subscribe %s: %w", ledger.EventChannel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev busEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				a.logger.WarnContext(ctx, "notifier bridge: bad event payload",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.notifyEvent(ctx, deps, ev)
		}
	}
}

// notifyEvent formats one engine event as a human-readable notification. The
// notifier itself applies the configured event filter.
func (a *App) notifyEvent(ctx context.Context, deps *Dependencies, ev busEvent) {
	var title, message string
	switch ev.Event {
	case domain.EventAuctionCreated:
		title = "Auction Created"
		message = fmt.Sprintf("Auction %d is open.", ev.AuctionID)
	case domain.EventAuctionSold:
		title = "Auction Sold"
		message = fmt.Sprintf("Auction %d sold to %s for %s.", ev.AuctionID, ev.Buyer, ev.PricePaid)
	case domain.EventAuctionCancelled:
		title = "Auction Cancelled"
		message = fmt.Sprintf("Auction %d was cancelled by its seller.", ev.AuctionID)
	case domain.EventSettlementInconsistency:
		title = "Settlement Inconsistency"
		message = fmt.Sprintf(
			"Auction %d: payment failed at stage %q after the asset was transferred. Manual reconciliation required.",
			ev.AuctionID, ev.Stage,
		)
	default:
		return
	}

	if err := deps.Notifier.Notify(ctx, ev.Event, title, message); err != nil {
		a.logger.WarnContext(ctx, "notifier bridge: dispatch failed",
			slog.String("event", string(ev.Event)),
			slog.String("error", err.Error()),
		)
	}
}
