// Package governor admits upstream requests per service class under
// per-minute, concurrency, and spacing constraints, with priority queuing
// and exponential retry on throttling signals.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"postforge/internal/config"
	"postforge/internal/logging"
	"postforge/internal/services"
)

// Class identifies an upstream service budget.
type Class string

const (
	ClassText  Class = "text"
	ClassImage Class = "image"
	ClassVideo Class = "video"
)

var (
	// ErrDrained rejects queued tasks when the caller abandons a context.
	ErrDrained = errors.New("queue drained")
	// ErrRetryBudget rejects a task whose throttle retries are exhausted.
	ErrRetryBudget = errors.New("retry budget exhausted")
	// ErrStopped rejects submissions after shutdown.
	ErrStopped = errors.New("governor stopped")
	// ErrUnknownClass rejects submissions for an unconfigured class.
	ErrUnknownClass = errors.New("unknown service class")
)

// Request describes one task submission.
type Request struct {
	// Priority orders the queue; lower runs sooner. Retries are boosted by
	// decreasing it.
	Priority int
	// MaxRetries bounds throttle retries. Zero uses the configured default.
	MaxRetries int
	// Do performs the upstream call once admitted.
	Do func(ctx context.Context) (any, error)
}

// ClassStats is a point-in-time view of one class queue.
type ClassStats struct {
	Queued        int `json:"queued"`
	Active        int `json:"active"`
	AdmittedInWin int `json:"admitted_in_window"`
}

// Governor owns one dispatcher per service class.
type Governor struct {
	mu          sync.Mutex
	dispatchers map[Class]*dispatcher
	stopped     bool

	baseDelay  time.Duration
	maxRetries int
	window     time.Duration
	logger     *slog.Logger
}

// Option customizes the governor.
type Option func(*Governor)

// WithWindow overrides the trailing admission window. Tests use short
// windows to exercise the per-minute cap quickly.
func WithWindow(window time.Duration) Option {
	return func(g *Governor) {
		if window > 0 {
			g.window = window
		}
	}
}

// New builds a governor from the configured class limits and starts one
// dispatcher goroutine per class.
func New(cfg config.Governor, logger *slog.Logger, opts ...Option) *Governor {
	g := &Governor{
		dispatchers: make(map[Class]*dispatcher, 3),
		baseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		maxRetries:  cfg.MaxRetries,
		window:      time.Minute,
		logger:      logging.NewComponentLogger(logger, "governor"),
	}
	if g.baseDelay <= 0 {
		g.baseDelay = time.Second
	}
	if g.maxRetries <= 0 {
		g.maxRetries = 3
	}
	for _, opt := range opts {
		opt(g)
	}

	for class, limits := range map[Class]config.ClassLimits{
		ClassText:  cfg.Text,
		ClassImage: cfg.Image,
		ClassVideo: cfg.Video,
	} {
		g.dispatchers[class] = newDispatcher(g, class, limits)
	}
	return g
}

// Enqueue submits a task and blocks until it resolves, the context is
// cancelled, or the queue is drained.
func (g *Governor) Enqueue(ctx context.Context, class Class, req Request) (any, error) {
	if req.Do == nil {
		return nil, errors.New("governor: task required")
	}
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil, ErrStopped
	}
	d, ok := g.dispatchers[class]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = g.maxRetries
	}
	t := &task{
		priority:   req.Priority,
		maxRetries: maxRetries,
		do: func() (any, error) {
			return req.Do(ctx)
		},
		done:      make(chan outcome, 1),
		cancelled: ctx.Err,
	}
	d.submit(t)

	select {
	case out := <-t.done:
		return out.value, out.err
	case <-ctx.Done():
		// The dispatcher observes the cancellation and skips the task if it
		// has not been admitted yet; an admitted call completes naturally and
		// its result is discarded here.
		return nil, ctx.Err()
	}
}

// Do is the typed form of Enqueue.
func Do[T any](ctx context.Context, g *Governor, class Class, req Request) (T, error) {
	var zero T
	value, err := g.Enqueue(ctx, class, req)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("governor: unexpected result type %T", value)
	}
	return typed, nil
}

// Drain rejects every queued (not in-flight) task across all classes.
// In-flight calls complete or fail naturally.
func (g *Governor) Drain(reason string) {
	g.mu.Lock()
	dispatchers := make([]*dispatcher, 0, len(g.dispatchers))
	for _, d := range g.dispatchers {
		dispatchers = append(dispatchers, d)
	}
	g.mu.Unlock()

	total := 0
	for _, d := range dispatchers {
		total += d.drain(reason)
	}
	if total > 0 {
		g.logger.Info("queues drained", logging.String("reason", reason), logging.Int("rejected", total))
	}
}

// Stop drains all queues and terminates the dispatcher goroutines.
func (g *Governor) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	dispatchers := make([]*dispatcher, 0, len(g.dispatchers))
	for _, d := range g.dispatchers {
		dispatchers = append(dispatchers, d)
	}
	g.mu.Unlock()

	for _, d := range dispatchers {
		d.stop()
	}
}

// Stats reports queue depth and admission counts per class.
func (g *Governor) Stats() map[Class]ClassStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	stats := make(map[Class]ClassStats, len(g.dispatchers))
	for class, d := range g.dispatchers {
		stats[class] = d.stats()
	}
	return stats
}

// Throttled reports whether the error is an upstream throttling signal.
func throttled(err error) bool {
	return services.Classify(err) == services.KindThrottled
}
