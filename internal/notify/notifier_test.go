package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// fakeSender records deliveries and optionally fails them.
type fakeSender struct {
	mu      sync.Mutex
	name    string
	sendErr error
	sent    []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeLimiter records Wait keys and optionally rejects them.
type fakeLimiter struct {
	mu      sync.Mutex
	keys    []string
	waitErr error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.waitErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"auction_sold"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), domain.EventAuctionCreated, "Created", "x"))
	assert.Zero(t, sender.sentCount(), "filtered event must not dispatch")

	require.NoError(t, n.Notify(context.Background(), domain.EventAuctionSold, "Sold", "x"))
	assert.Equal(t, 1, sender.sentCount())
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), domain.EventSettlementInconsistency, "Inconsistency", "x"))
	assert.Equal(t, 1, sender.sentCount())
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	broken := &fakeSender{name: "telegram", sendErr: errors.New("api down")}
	healthy := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "Sold", "x")
	require.Error(t, err)
	assert.ErrorContains(t, err, "telegram")
	assert.Equal(t, 1, healthy.sentCount(), "one broken channel must not block the rest")
}

func TestDispatchWaitsOnRateLimiter(t *testing.T) {
	first := &fakeSender{name: "telegram"}
	second := &fakeSender{name: "discord"}
	limiter := &fakeLimiter{}
	n := NewNotifier([]Sender{first, second}, nil, testLogger()).WithRateLimiter(limiter)

	require.NoError(t, n.NotifyAll(context.Background(), "Sold", "x"))
	assert.Equal(t, []string{"notify:telegram", "notify:discord"}, limiter.keys)
	assert.Equal(t, 1, first.sentCount())
	assert.Equal(t, 1, second.sentCount())
}

func TestDispatchSkipsSenderWhenWaitFails(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	limiter := &fakeLimiter{waitErr: context.DeadlineExceeded}
	n := NewNotifier([]Sender{sender}, nil, testLogger()).WithRateLimiter(limiter)

	err := n.NotifyAll(context.Background(), "Sold", "x")
	require.Error(t, err)
	assert.Zero(t, sender.sentCount())
}
