package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/keygate/pkg/async"
	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/logger"
)

// DefaultDeliveryTimeout bounds one asynchronous dispatch.
const DefaultDeliveryTimeout = 30 * time.Second

// Dispatcher fans a notification out to every deliverer. Failures are logged
// and never returned, so it can be handed to the licensing service directly.
type Dispatcher struct {
	deliverers []Deliverer
	logger     *slog.Logger
	async      bool
	timeout    time.Duration
	wg         sync.WaitGroup
}

var _ licensing.Notifier = (*Dispatcher)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for delivery failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithAsync makes Notify return immediately. Delivery runs on a context
// detached from the caller and bounded by timeout (DefaultDeliveryTimeout when
// timeout is not positive). Call Close on shutdown to wait for in-flight work.
func WithAsync(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.async = true
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher over deliverers. Nil entries are skipped.
func NewDispatcher(deliverers []Deliverer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		logger:  slog.Default(),
		timeout: DefaultDeliveryTimeout,
	}
	for _, del := range deliverers {
		if del != nil {
			d.deliverers = append(d.deliverers, del)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers n through all channels. It always returns nil.
func (d *Dispatcher) Notify(ctx context.Context, n licensing.Notification) error {
	if len(d.deliverers) == 0 {
		return nil
	}
	if !d.async {
		d.dispatch(ctx, n)
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.dispatch(ctx, n)
	}()
	return nil
}

// Close waits for asynchronous deliveries or until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, n licensing.Notification) {
	futures := make([]*async.Future[struct{}], len(d.deliverers))
	for i, del := range d.deliverers {
		futures[i] = async.Async(ctx, n, func(ctx context.Context, n licensing.Notification) (struct{}, error) {
			return struct{}{}, del.Deliver(ctx, n)
		})
	}

	for i, f := range futures {
		if _, err := f.Await(); err != nil {
			d.logger.LogAttrs(ctx, slog.LevelError, "notification delivery failed",
				logger.Event(string(n.Kind)),
				logger.UserID(n.UserID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
}
