package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

// BalanceRepository records observed wallet balances. Appends are
// best-effort from the watcher's point of view.
type BalanceRepository interface {
	// AppendMany stores one row per status.
	AppendMany(ctx context.Context, statuses []domain.WalletStatus) error

	// Latest returns the most recent status per (address, chain).
	Latest(ctx context.Context) ([]domain.WalletStatus, error)

	// DeleteOlderThan removes statuses observed before cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type runIDKey struct{}

// WithRunID tags ctx with the id of the current watcher pass.
func WithRunID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the pass id stored by WithRunID.
func RunID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(runIDKey{}).(uuid.UUID)
	return id, ok
}
