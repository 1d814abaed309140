package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/alerting/opsgenie"
	"github.com/api3dao/wallet-watcher/internal/core/config"
	redisclient "github.com/api3dao/wallet-watcher/internal/infra/redis"
	"github.com/api3dao/wallet-watcher/internal/infra/rpc"
	"github.com/api3dao/wallet-watcher/internal/infra/storage"
	"github.com/api3dao/wallet-watcher/internal/infra/storage/memory"
	"github.com/api3dao/wallet-watcher/internal/infra/storage/postgres"
	"github.com/api3dao/wallet-watcher/internal/metrics"
	"github.com/api3dao/wallet-watcher/internal/watcher"
)

// runLockName is the redis lock shared by every watcher process.
const runLockName = "run"

// finalizeTimeout bounds the run-level alert and heartbeat calls, which run
// after the pass context may have expired.
const finalizeTimeout = 30 * time.Second

// Options configures a Runner.
type Options struct {
	// Config supplies the sink, storage and lock settings.
	Config *config.AppConfig
	// Load re-reads chains and wallets before every pass. Defaults to
	// returning Config.
	Load func() (*config.AppConfig, error)
	// SendFunds enables real top-up transactions.
	SendFunds bool

	// Sink overrides the sink selected from Config.
	Sink alerting.Sink
	// Dial overrides the chain dialer.
	Dial watcher.Dialer
	Log  *slog.Logger
}

// Runner executes watcher passes with run-level retries, alerting and
// heartbeats. It owns the long-lived infrastructure shared by passes.
type Runner struct {
	cfg       *config.AppConfig
	load      func() (*config.AppConfig, error)
	sendFunds bool
	sink      alerting.Sink
	dial      watcher.Dialer
	repo      storage.BalanceRepository
	db        *postgres.DB
	redis     *redisclient.Client
	log       *slog.Logger

	// passMu keeps passes in this process from overlapping.
	passMu sync.Mutex

	mu   sync.RWMutex
	last RunStatus
}

// NewRunner connects the sink, the balance store and the optional run lock.
func NewRunner(ctx context.Context, opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	r := &Runner{
		cfg:       cfg,
		load:      opts.Load,
		sendFunds: opts.SendFunds,
		sink:      opts.Sink,
		dial:      opts.Dial,
		log:       log,
		last:      RunStatus{Result: ResultNone},
	}
	if r.load == nil {
		r.load = func() (*config.AppConfig, error) { return cfg, nil }
	}

	if r.sink == nil {
		if cfg.OpsGenie.APIKey != "" {
			r.sink = opsgenie.NewClient(opsgenie.Config{
				APIKey:  cfg.OpsGenie.APIKey,
				BaseURL: cfg.OpsGenie.BaseURL,
				Timeout: cfg.OpsGenie.Timeout,
			}, log)
			log.Info("Using OpsGenie alerting")
		} else {
			r.sink = alerting.LogSink{Log: log}
			log.Warn("No OpsGenie API key, alerts are only logged")
		}
	}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		db.StartMetricsCollector(ctx)
		r.db = db
		r.repo = postgres.NewBalanceRepo(db)
		log.Info("Using PostgreSQL balance history")
	} else {
		r.repo = memory.NewBalanceRepo()
		log.Info("Using in-memory balance history")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, run lock disabled", "error", err)
		} else {
			r.redis = client
		}
	}

	return r, nil
}

// Repo returns the balance history store.
func (r *Runner) Repo() storage.BalanceRepository {
	return r.repo
}

// LastRun returns the status of the last finished pass.
func (r *Runner) LastRun() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RunOnce performs one pass. A pass that fails on every attempt raises the
// run failure alert; a successful pass closes it. The heartbeat is pinged
// either way. The returned error is the pass error, already reported to the
// sink. A call made while another pass is running is skipped.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()

	if !r.passMu.TryLock() {
		r.log.Info("Previous watcher pass still running, skipping")
		r.record(RunStatus{Result: ResultSkipped, StartedAt: start})
		return nil
	}
	defer r.passMu.Unlock()

	if r.redis != nil {
		lock, err := r.redis.AcquireLock(ctx, runLockName, r.lockTTL())
		if errors.Is(err, redisclient.ErrLockHeld) {
			r.log.Info("Another watcher pass is running, skipping")
			r.record(RunStatus{Result: ResultSkipped, StartedAt: start})
			return nil
		}
		if err != nil {
			r.log.Warn("Failed to acquire run lock, continuing without it", "error", err)
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					r.log.Warn("Failed to release run lock", "error", err)
				}
			}()
		}
	}

	// One dispatcher per run, so open alerts are listed at most once.
	d := alerting.NewDispatcher(r.sink, r.limits(), r.log)
	report, err := rpc.Do(ctx, r.retryConfig(), func(ctx context.Context) (*watcher.Report, error) {
		return r.attempt(ctx, d)
	}, func(attempt int, err error) {
		r.log.Warn("Watcher pass failed", "attempt", attempt, "error", err)
	})

	r.finalize(ctx, d, report, err)

	status := RunStatus{StartedAt: start, Duration: time.Since(start)}
	switch {
	case err != nil:
		status.Result = ResultFailure
		status.Error = err.Error()
		status.Successive = r.LastRun().Successive + 1
	case report.Degraded():
		status.Result = ResultDegraded
		status.Error = report.Err.Error()
		r.log.Warn("Watcher pass finished with wallet errors", "error", report.Err)
	default:
		status.Result = ResultSuccess
	}
	if report != nil {
		status.RunID = report.RunID.String()
		status.Wallets = report.Wallets
		status.Fetched = report.Fetched
	}
	r.record(status)

	metrics.RunDuration.Observe(status.Duration.Seconds())
	metrics.LastRunTimestamp.WithLabelValues(string(status.Result)).SetToCurrentTime()
	return err
}

// attempt runs a single pass with a fresh config.
func (r *Runner) attempt(ctx context.Context, d *alerting.Dispatcher) (*watcher.Report, error) {
	cfg, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts := watcher.FromConfig(cfg, r.sendFunds)
	opts.Dial = r.dial
	opts.Repo = r.repo
	opts.Log = r.log

	return watcher.New(opts).Run(ctx, d)
}

// finalize reports the pass outcome to the sink and pings the heartbeat,
// which only signals that the run completed. It uses its own deadline so a
// timed-out pass is still reported.
func (r *Runner) finalize(ctx context.Context, d *alerting.Dispatcher, report *watcher.Report, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	defer d.Wait()

	if runErr != nil {
		r.log.Error("Watcher pass failed after all attempts", "error", runErr)
		d.RaiseBlocking(ctx, alerting.Alert{
			Alias:       alerting.AliasRunFailure,
			Message:     fmt.Sprintf("Wallet Watcher encountered an error after multiple tries: %v", runErr),
			Description: fmt.Sprintf("Error: %v", runErr),
			Priority:    alerting.P1,
		})
	} else {
		d.CloseBestEffort(ctx, alerting.AliasRunFailure)
		r.log.Info("Watcher pass completed", "run", report.RunID.String(), "duration", report.Duration)
	}
	d.Heartbeat(ctx, r.cfg.OpsGenie.HeartbeatName)
}

func (r *Runner) retryConfig() rpc.RetryConfig {
	cfg := rpc.RunRetryConfig
	if r.cfg.Run.Attempts > 0 {
		cfg.MaxAttempts = r.cfg.Run.Attempts
	}
	if r.cfg.Run.RetryDelay > 0 {
		cfg.InitialDelay = r.cfg.Run.RetryDelay
		cfg.MaxDelay = r.cfg.Run.RetryDelay
	}
	if r.cfg.Run.Timeout > 0 {
		cfg.Timeout = r.cfg.Run.Timeout
	}
	return cfg
}

func (r *Runner) limits() alerting.Limits {
	return alerting.Limits{
		MaxConcurrent: r.cfg.OpsGenie.MaxConcurrent,
		MinSpacing:    r.cfg.OpsGenie.MinSpacing,
	}
}

// lockTTL outlives the pass timeout so the lock is never lost mid-pass.
func (r *Runner) lockTTL() time.Duration {
	return r.retryConfig().Timeout + finalizeTimeout
}

func (r *Runner) record(s RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
}

// Close releases the database and redis connections.
func (r *Runner) Close() error {
	var err error
	if r.db != nil {
		err = multierr.Append(err, r.db.Close())
	}
	if r.redis != nil {
		err = multierr.Append(err, r.redis.Close())
	}
	return err
}
