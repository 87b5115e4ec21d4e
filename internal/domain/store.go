package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuctionStore persists auction records. The ledger is authoritative in
// memory; the store is a write-through mirror used for restart recovery and
// history queries.
type AuctionStore interface {
	Insert(ctx context.Context, a Auction) error

	// UpdateStatus transitions a record from one status to another, setting
	// closed_at. The transition is guarded: it fails with ErrAuctionNotFound
	// when no row matches both id and the expected current status.
	UpdateStatus(ctx context.Context, id AuctionID, from, to AuctionStatus, closedAt time.Time) error

	GetByID(ctx context.Context, id AuctionID) (Auction, error)
	ListOpen(ctx context.Context) ([]Auction, error)
	List(ctx context.Context, opts ListOpts) ([]Auction, error)
	Count(ctx context.Context) (int64, error)

	// MaxID returns the highest allocated auction id, or 0 when the store is
	// empty. Used to resume the id sequence after restart.
	MaxID(ctx context.Context) (uint64, error)

	// ListTerminatedBefore returns sold/cancelled records that closed strictly
	// before the cutoff. Used by the archiver; records are never deleted.
	ListTerminatedBefore(ctx context.Context, before time.Time) ([]Auction, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     EventType      `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log of engine operations and
// settlement outcomes.
type AuditStore interface {
	Log(ctx context.Context, event EventType, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
