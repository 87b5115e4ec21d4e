// Package pricing implements the descending-price schedule: pure arithmetic
// that derives an auction's per-second price step at creation time and
// computes the current clearing price at any later instant. It holds no state
// and is safe for concurrent use.
package pricing

import (
	"math/big"
	"time"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// DeriveStep returns the per-second price decrement
// (startPrice - floorPrice) / durationSeconds using integer division truncated
// toward zero. The step is computed once at creation and stored on the record
// so repeated price reads never drift.
func DeriveStep(startPrice, floorPrice *big.Int, duration time.Duration) (*big.Int, error) {
	if startPrice == nil || floorPrice == nil {
		return nil, domain.ErrInvalidAuctionParams
	}
	secs := int64(duration / time.Second)
	if secs <= 0 {
		return nil, domain.ErrInvalidAuctionParams
	}
	if startPrice.Cmp(floorPrice) <= 0 {
		return nil, domain.ErrInvalidAuctionParams
	}

	span := new(big.Int).Sub(startPrice, floorPrice)
	return span.Quo(span, big.NewInt(secs)), nil
}

// CurrentPrice computes the clearing price of a at the instant now.
//
// Elapsed time is clamped at zero (a clock behind StartTime must not
// underflow) and truncated to whole seconds to match the step unit. Once the
// full duration has elapsed the price is pinned at the floor exactly; before
// that it is startPrice - step*elapsed, floored so cumulative truncation can
// never dip below FloorPrice early.
func CurrentPrice(a domain.Auction, now time.Time) (*big.Int, error) {
	if a.Status != domain.AuctionStatusOpen {
		return nil, domain.ErrAuctionTerminated
	}

	elapsed := now.Sub(a.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= a.Duration {
		return new(big.Int).Set(a.FloorPrice), nil
	}

	decay := new(big.Int).Mul(a.PriceStep, big.NewInt(int64(elapsed/time.Second)))
	price := new(big.Int).Sub(a.StartPrice, decay)
	if price.Cmp(a.FloorPrice) < 0 {
		return new(big.Int).Set(a.FloorPrice), nil
	}
	return price, nil
}
