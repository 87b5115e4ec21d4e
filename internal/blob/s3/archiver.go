package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// AuctionArchiveStore provides the read access the archiver needs from the
// auction store. The Postgres store satisfies it implicitly.
type AuctionArchiveStore interface {
	// ListTerminatedBefore returns sold or cancelled auctions whose closed_at
	// is strictly before the cutoff.
	ListTerminatedBefore(ctx context.Context, before time.Time) ([]domain.Auction, error)
}

// AuditArchiveStore provides the read access the archiver needs from the
// audit store.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying terminated auction
// records and old audit entries, serializing them to JSONL, and uploading the
// result to S3.
//
// Records are never deleted from the primary store; the archive is a
// long-term copy, not a migration.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	auctions AuctionArchiveStore
	audit    AuditArchiveStore
	auditLog domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. auditLog may equal audit; it is the
// store the archival event itself is recorded in.
func NewArchiver(
	writer domain.BlobWriter,
	auctions AuctionArchiveStore,
	audit AuditArchiveStore,
	auditLog domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		auctions: auctions,
		audit:    audit,
		auditLog: auditLog,
	}
}

// Archive exports terminated auctions and audit entries older than the cutoff
// and records the run in the audit log.
func (a *ArchiveImpl) Archive(ctx context.Context, before time.Time) (domain.ArchiveResult, error) {
	var result domain.ArchiveResult

	auctionCount, auctionPath, err := a.archiveAuctions(ctx, before)
	if err != nil {
		return result, err
	}
	result.Auctions = auctionCount
	if auctionPath != "" {
		result.Objects = append(result.Objects, auctionPath)
	}

	auditCount, auditPath, err := a.archiveAudit(ctx, before)
	if err != nil {
		return result, err
	}
	result.AuditEntries = auditCount
	if auditPath != "" {
		result.Objects = append(result.Objects, auditPath)
	}

	if auctionCount == 0 && auditCount == 0 {
		return result, nil
	}

	if err := a.auditLog.Log(ctx, domain.EventArchiveRun, map[string]any{
		"before":        before.Format(time.RFC3339),
		"auctions":      auctionCount,
		"audit_entries": auditCount,
		"objects":       result.Objects,
	}); err != nil {
		return result, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return result, nil
}

func (a *ArchiveImpl) archiveAuctions(ctx context.Context, before time.Time) (int, string, error) {
	auctions, err := a.auctions.ListTerminatedBefore(ctx, before)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive auctions query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, "", nil
	}

	buf, err := marshalJSONL(auctions)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive auctions marshal: %w", err)
	}

	path := archivePath("auctions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, "", fmt.Errorf("s3blob: archive auctions upload: %w", err)
	}

	return len(auctions), path, nil
}

func (a *ArchiveImpl) archiveAudit(ctx context.Context, before time.Time) (int, string, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, "", nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, "", fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return len(entries), path, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/auctions/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
