package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/logger"
)

// Deliverer sends a notification over one channel.
type Deliverer interface {
	Deliver(ctx context.Context, n licensing.Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n licensing.Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, n licensing.Notification) error { return f(ctx, n) }

// LogDeliverer writes notifications to a logger. Useful in development and
// as an audit trail next to the real channels.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a LogDeliverer. A nil logger means slog.Default.
func NewLogDeliverer(l *slog.Logger) *LogDeliverer {
	if l == nil {
		l = slog.Default()
	}
	return &LogDeliverer{logger: l}
}

func (d *LogDeliverer) Deliver(ctx context.Context, n licensing.Notification) error {
	attrs := []slog.Attr{
		logger.Event(string(n.Kind)),
		logger.UserID(n.UserID),
		slog.String("plan", string(n.Plan)),
		slog.Time("occurred_at", n.OccurredAt),
	}
	if n.SubscriptionID != nil {
		attrs = append(attrs, logger.SubscriptionID(*n.SubscriptionID))
	}
	if n.LicenseID != nil {
		attrs = append(attrs, logger.LicenseID(*n.LicenseID))
	}
	if n.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *n.ExpiresAt))
	}
	d.logger.LogAttrs(ctx, slog.LevelInfo, "license notification", attrs...)
	return nil
}
