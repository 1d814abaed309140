package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/api3dao/wallet-watcher/internal/infra/storage"
)

// Pruner deletes balance history older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.BalanceRepository
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo storage.BalanceRepository) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour.
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes history older than the retention period once.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := time.Now().Add(-p.retention)
	n, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune balance history", "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned balance history", "rows", n, "before", cutoff.Format(time.RFC3339))
	}
	return n
}
