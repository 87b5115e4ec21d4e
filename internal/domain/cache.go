package domain

import (
	"context"
	"io"
	"math/big"
	"time"
)

// PriceCache provides fast access to recently computed clearing prices. The
// cached value is advisory: settlement always recomputes from the record.
type PriceCache interface {
	SetPrice(ctx context.Context, id AuctionID, price *big.Int, ts time.Time) error
	GetPrice(ctx context.Context, id AuctionID) (*big.Int, time.Time, error)
	Invalidate(ctx context.Context, id AuctionID) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out of auction events and a durable,
// ordered event journal.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter stores immutable archive objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports terminated auction records and audit entries to long-term
// object storage. Archived rows stay in the primary store.
type Archiver interface {
	Archive(ctx context.Context, before time.Time) (ArchiveResult, error)
}

// ArchiveResult summarizes one archival run.
type ArchiveResult struct {
	Auctions     int
	AuditEntries int
	Objects      []string
}
