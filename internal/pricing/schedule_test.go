package pricing

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
)

func newAuction(t *testing.T, start, floor int64, duration time.Duration) domain.Auction {
	t.Helper()

	step, err := DeriveStep(big.NewInt(start), big.NewInt(floor), duration)
	require.NoError(t, err)

	return domain.Auction{
		ID:         1,
		StartPrice: big.NewInt(start),
		FloorPrice: big.NewInt(floor),
		PriceStep:  step,
		StartTime:  time.Unix(0, 0),
		Duration:   duration,
		Status:     domain.AuctionStatusOpen,
	}
}

func TestDeriveStep(t *testing.T) {
	step, err := DeriveStep(big.NewInt(2_000_000), big.NewInt(500_000), 86400*time.Second)
	require.NoError(t, err)
	// (2_000_000 - 500_000) / 86400 = 17.36..., truncated toward zero.
	assert.Equal(t, int64(17), step.Int64())

	step, err = DeriveStep(big.NewInt(865_000), big.NewInt(1_000), 86400*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(10), step.Int64())
}

func TestDeriveStepRejectsBadParams(t *testing.T) {
	cases := []struct {
		name     string
		start    *big.Int
		floor    *big.Int
		duration time.Duration
	}{
		{"equal prices", big.NewInt(100), big.NewInt(100), time.Hour},
		{"inverted prices", big.NewInt(50), big.NewInt(100), time.Hour},
		{"zero duration", big.NewInt(200), big.NewInt(100), 0},
		{"sub-second duration", big.NewInt(200), big.NewInt(100), 500 * time.Millisecond},
		{"nil start", nil, big.NewInt(100), time.Hour},
		{"nil floor", big.NewInt(200), nil, time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DeriveStep(tc.start, tc.floor, tc.duration)
			assert.ErrorIs(t, err, domain.ErrInvalidAuctionParams)
		})
	}
}

func TestCurrentPriceDecay(t *testing.T) {
	// 2.0 -> 0.5 over 24h at 6-decimal fixed point. The step divides evenly
	// per hour checkpoint below because we assert against the truncating
	// formula itself, not an idealized linear value.
	a := newAuction(t, 2_000_000, 500_000, 86400*time.Second)

	at := func(sec int64) *big.Int {
		p, err := CurrentPrice(a, a.StartTime.Add(time.Duration(sec)*time.Second))
		require.NoError(t, err)
		return p
	}

	assert.Equal(t, int64(2_000_000), at(0).Int64())
	// 2_000_000 - 17*43200
	assert.Equal(t, int64(1_265_600), at(43200).Int64())
	assert.Equal(t, int64(500_000), at(86400).Int64(), "floor exactly at duration")
	assert.Equal(t, int64(500_000), at(200_000).Int64(), "pinned at floor forever")
}

func TestCurrentPriceExactDivision(t *testing.T) {
	// 864_000 span over 86400s gives a clean 10/s step: halfway is exact.
	a := newAuction(t, 865_000, 1_000, 86400*time.Second)

	p, err := CurrentPrice(a, a.StartTime.Add(43200*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(433_000), p.Int64())
}

func TestCurrentPriceMonotonicity(t *testing.T) {
	a := newAuction(t, 1_999_999, 3, 7001*time.Second)

	prev, err := CurrentPrice(a, a.StartTime)
	require.NoError(t, err)

	for sec := int64(1); sec <= 9000; sec += 7 {
		cur, err := CurrentPrice(a, a.StartTime.Add(time.Duration(sec)*time.Second))
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.Cmp(prev), 0, "price rose at t=%d", sec)
		assert.GreaterOrEqual(t, cur.Cmp(a.FloorPrice), 0, "price below floor at t=%d", sec)
		prev = cur
	}
}

func TestCurrentPriceClampsNegativeElapsed(t *testing.T) {
	a := newAuction(t, 2_000_000, 500_000, time.Hour)

	p, err := CurrentPrice(a, a.StartTime.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), p.Int64())
}

func TestCurrentPriceNeverDipsBelowFloorEarly(t *testing.T) {
	a := newAuction(t, 1_999, 1_000, 100*time.Second)

	p, err := CurrentPrice(a, a.StartTime.Add(99*time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Cmp(a.FloorPrice), 0)
}

func TestCurrentPriceTerminated(t *testing.T) {
	a := newAuction(t, 2_000_000, 500_000, time.Hour)

	for _, status := range []domain.AuctionStatus{domain.AuctionStatusSold, domain.AuctionStatusCancelled} {
		a.Status = status
		_, err := CurrentPrice(a, a.StartTime.Add(time.Minute))
		assert.ErrorIs(t, err, domain.ErrAuctionTerminated)
	}
}
