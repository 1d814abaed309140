package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/api3dao/wallet-watcher/internal/metrics"
)

// Limits bounds outbound sink calls.
type Limits struct {
	MaxConcurrent int64
	MinSpacing    time.Duration
}

// DefaultLimits allows 10 calls in flight, started at least 100ms apart.
var DefaultLimits = Limits{
	MaxConcurrent: 10,
	MinSpacing:    100 * time.Millisecond,
}

// Dispatcher issues raise and close commands for a single run. It owns the
// run's open-alias cache and rate limiter; create one per run.
//
// Operations on the same alias are executed in the order they were issued.
// Raises block the caller; closes run in the background until Wait.
type Dispatcher struct {
	sink    Sink
	log     *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	cacheOnce sync.Once
	mu        sync.Mutex
	cacheOK   bool
	open      map[string]struct{}
	tails     map[string]chan struct{}

	wg sync.WaitGroup
}

// NewDispatcher creates a run-scoped dispatcher.
func NewDispatcher(sink Sink, limits Limits, log *slog.Logger) *Dispatcher {
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = DefaultLimits.MaxConcurrent
	}
	limit := rate.Inf
	if limits.MinSpacing > 0 {
		limit = rate.Every(limits.MinSpacing)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		sink:    sink,
		log:     log,
		sem:     semaphore.NewWeighted(limits.MaxConcurrent),
		limiter: rate.NewLimiter(limit, 1),
		open:    make(map[string]struct{}),
		tails:   make(map[string]chan struct{}),
	}
}

// RaiseBlocking raises alert and returns once the sink call finished.
// Failures are logged.
func (d *Dispatcher) RaiseBlocking(ctx context.Context, alert Alert) {
	prev, done := d.enqueue(alert.Alias)
	defer done()
	if err := waitFor(ctx, prev); err != nil {
		d.log.Error("Alert raise abandoned", "alias", alert.Alias, "error", err)
		return
	}
	d.raise(ctx, alert)
}

// CloseBestEffort closes alias in the background. Closing an alias that is
// not open is a no-op.
func (d *Dispatcher) CloseBestEffort(ctx context.Context, alias string) {
	prev, done := d.enqueue(alias)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer done()
		if err := waitFor(ctx, prev); err != nil {
			d.log.Warn("Alert close abandoned", "alias", alias, "error", err)
			return
		}
		d.close(ctx, alias)
	}()
}

// Heartbeat pings the named heartbeat. Failures are logged.
func (d *Dispatcher) Heartbeat(ctx context.Context, name string) {
	err := d.call(ctx, func(ctx context.Context) error {
		return d.sink.Heartbeat(ctx, name)
	})
	if err != nil {
		metrics.AlertCallsTotal.WithLabelValues("heartbeat", "error").Inc()
		d.log.Error("Failed to send heartbeat", "name", name, "error", err)
		return
	}
	metrics.AlertCallsTotal.WithLabelValues("heartbeat", "ok").Inc()
}

// Wait blocks until every pending close has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) raise(ctx context.Context, alert Alert) {
	err := d.call(ctx, func(ctx context.Context) error {
		return d.sink.Raise(ctx, alert)
	})
	if err != nil {
		metrics.AlertCallsTotal.WithLabelValues("raise", "error").Inc()
		d.log.Error("Failed to raise alert", "alias", alert.Alias, "priority", alert.Priority, "error", err)
		return
	}
	metrics.AlertCallsTotal.WithLabelValues("raise", "ok").Inc()

	d.mu.Lock()
	d.open[alert.Alias] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) close(ctx context.Context, alias string) {
	d.loadOpen(ctx)

	d.mu.Lock()
	_, isOpen := d.open[alias]
	skip := d.cacheOK && !isOpen
	d.mu.Unlock()
	if skip {
		metrics.AlertCallsTotal.WithLabelValues("close", "skipped").Inc()
		return
	}

	err := d.call(ctx, func(ctx context.Context) error {
		return d.sink.Close(ctx, alias)
	})
	if err != nil {
		metrics.AlertCallsTotal.WithLabelValues("close", "error").Inc()
		d.log.Warn("Failed to close alert", "alias", alias, "error", err)
		return
	}
	metrics.AlertCallsTotal.WithLabelValues("close", "ok").Inc()

	d.mu.Lock()
	delete(d.open, alias)
	d.mu.Unlock()
}

// loadOpen seeds the open-alias cache once per run. When listing fails every
// close goes to the sink.
func (d *Dispatcher) loadOpen(ctx context.Context) {
	d.cacheOnce.Do(func() {
		var alerts []OpenAlert
		err := d.call(ctx, func(ctx context.Context) error {
			var err error
			alerts, err = d.sink.ListOpen(ctx)
			return err
		})
		if err != nil {
			d.log.Error("Failed to list open alerts", "error", err)
			d.raise(ctx, Alert{
				Alias:       AliasOpenAlertsCacheFailure,
				Message:     "Failed to load open alerts",
				Description: fmt.Sprintf("Error: %v", err),
				Priority:    P3,
			})
			return
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		for _, a := range alerts {
			if a.Alias != "" {
				d.open[a.Alias] = struct{}{}
			}
		}
		d.cacheOK = true
		d.log.Debug("Loaded open alerts", "count", len(alerts))
	})
}

// call runs fn under the concurrency and spacing limits. Callers beyond the
// limit wait.
func (d *Dispatcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// enqueue registers an operation on alias and returns the channel of the
// operation it must wait for, plus a func marking this one done.
func (d *Dispatcher) enqueue(alias string) (<-chan struct{}, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.tails[alias]
	ch := make(chan struct{})
	d.tails[alias] = ch

	return prev, func() {
		close(ch)
		d.mu.Lock()
		if d.tails[alias] == ch {
			delete(d.tails, alias)
		}
		d.mu.Unlock()
	}
}

func waitFor(ctx context.Context, prev <-chan struct{}) error {
	if prev == nil {
		return nil
	}
	select {
	case <-prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
