package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Insert writes a newly created auction record.
func (s *AuctionStore) Insert(ctx context.Context, a domain.Auction) error {
	var itemID *string
	if a.Asset.ItemID != nil {
		v := a.Asset.ItemID.String()
		itemID = &v
	}

	const query = `
		INSERT INTO auctions (
			id, seller, asset_contract, asset_item_id, asset_unique,
			start_price, floor_price, price_step,
			start_time, duration_secs, status, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(a.ID),
		a.Seller.Hex(),
		a.Asset.Contract.Hex(), itemID, a.Asset.Unique,
		a.StartPrice.String(), a.FloorPrice.String(), a.PriceStep.String(),
		a.StartTime, int64(a.Duration/time.Second),
		string(a.Status), a.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert auction %d: %w", a.ID, err)
	}
	return nil
}

// UpdateStatus transitions an auction from one status to another. The WHERE
// clause guards on the expected current status, so a row that already moved
// on affects zero rows and the call reports ErrAuctionNotFound.
func (s *AuctionStore) UpdateStatus(ctx context.Context, id domain.AuctionID, from, to domain.AuctionStatus, closedAt time.Time) error {
	const query = `
		UPDATE auctions
		SET status = $1, closed_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`

	tag, err := s.pool.Exec(ctx, query, string(to), closedAt, int64(id), string(from))
	if err != nil {
		return fmt.Errorf("postgres: update auction %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuctionNotFound
	}
	return nil
}

const auctionSelectCols = `id, seller, asset_contract, asset_item_id, asset_unique,
	start_price, floor_price, price_step,
	start_time, duration_secs, status, closed_at`

func scanAuctionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Auction, error) {
	var a domain.Auction
	var id, durationSecs int64
	var seller, contract, startPrice, floorPrice, priceStep, status string
	var itemID *string

	err := scanner.Scan(
		&id, &seller, &contract, &itemID, &a.Asset.Unique,
		&startPrice, &floorPrice, &priceStep,
		&a.StartTime, &durationSecs, &status, &a.ClosedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	a.ID = domain.AuctionID(id)
	a.Seller = common.HexToAddress(seller)
	a.Asset.Contract = common.HexToAddress(contract)
	if itemID != nil {
		a.Asset.ItemID = new(big.Int)
		if _, ok := a.Asset.ItemID.SetString(*itemID, 10); !ok {
			return domain.Auction{}, fmt.Errorf("bad asset_item_id %q", *itemID)
		}
	}

	a.StartPrice, err = parsePrice(startPrice, "start_price")
	if err != nil {
		return domain.Auction{}, err
	}
	a.FloorPrice, err = parsePrice(floorPrice, "floor_price")
	if err != nil {
		return domain.Auction{}, err
	}
	a.PriceStep, err = parsePrice(priceStep, "price_step")
	if err != nil {
		return domain.Auction{}, err
	}

	a.Duration = time.Duration(durationSecs) * time.Second
	a.Status = domain.AuctionStatus(status)

	return a, nil
}

func parsePrice(s, col string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad %s %q", col, s)
	}
	return v, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// GetByID retrieves a single auction by id.
func (s *AuctionStore) GetByID(ctx context.Context, id domain.AuctionID) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, int64(id))

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrAuctionNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", id, err)
	}
	return a, nil
}

// ListOpen returns every auction still in the open status, oldest first so the
// ledger rebuilds its arena in creation order.
func (s *AuctionStore) ListOpen(ctx context.Context) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status = 'open'
		 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open auctions: %w", err)
	}
	return auctions, nil
}

// List returns auctions with pagination and optional time filtering, newest
// first.
func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND start_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan auctions: %w", err)
	}
	return auctions, nil
}

// Count returns the total number of auction records.
func (s *AuctionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auctions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count auctions: %w", err)
	}
	return n, nil
}

// MaxID returns the highest allocated auction id, or 0 when the table is empty.
func (s *AuctionStore) MaxID(ctx context.Context) (uint64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM auctions`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("postgres: max auction id: %w", err)
	}
	return uint64(max), nil
}

// ListTerminatedBefore returns sold or cancelled auctions whose closed_at is
// strictly before the cutoff.
func (s *AuctionStore) ListTerminatedBefore(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status IN ('sold', 'cancelled') AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminated auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminated auctions: %w", err)
	}
	return auctions, nil
}
