// Package notify fans auction engine events out to operator alert channels.
// Each channel is a Sender; the Notifier applies the configured event filter
// and an optional send-rate pacer before dispatching.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vogeb-org/auctiond/internal/domain"
)

// Sender is one alert channel.
type Sender interface {
	// Send delivers one alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier dispatches engine events to the configured senders. Only events in
// the allowed set pass Notify; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. The events
// slice names the event types Notify forwards; empty means all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// WithRateLimiter attaches a pacer applied per sender before each delivery,
// keeping alert bursts within the webhook APIs' limits.
func (n *Notifier) WithRateLimiter(rl domain.RateLimiter) *Notifier {
	n.limiter = rl
	return n
}

// Notify delivers an alert for the given engine event if it passes the
// configured filter.
func (n *Notifier) Notify(ctx context.Context, event domain.EventType, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(event)),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers an alert to every sender regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. One channel failing does not stop delivery
// to the rest; failures are joined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx, "notify:"+s.Name()); err != nil {
				errs = append(errs, fmt.Errorf("%s: rate limit wait: %w", s.Name(), err))
				continue
			}
		}
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
