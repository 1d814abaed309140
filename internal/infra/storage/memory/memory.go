package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

// defaultHistory is how many statuses are kept per wallet.
const defaultHistory = 96

// BalanceRepo keeps recent balances in memory.
type BalanceRepo struct {
	mu      sync.RWMutex
	history map[string][]domain.WalletStatus
	limit   int
}

func NewBalanceRepo() *BalanceRepo {
	return &BalanceRepo{
		history: make(map[string][]domain.WalletStatus),
		limit:   defaultHistory,
	}
}

func (r *BalanceRepo) AppendMany(ctx context.Context, statuses []domain.WalletStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range statuses {
		key := s.Key()
		h := append(r.history[key], s)
		if len(h) > r.limit {
			h = h[len(h)-r.limit:]
		}
		r.history[key] = h
	}
	return nil
}

func (r *BalanceRepo) Latest(ctx context.Context) ([]domain.WalletStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WalletStatus, 0, len(r.history))
	for _, h := range r.history {
		out = append(out, h[len(h)-1])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out, nil
}

// History returns the stored statuses for one wallet, oldest first.
func (r *BalanceRepo) History(key string) []domain.WalletStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.WalletStatus(nil), r.history[key]...)
}

func (r *BalanceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, h := range r.history {
		i := 0
		for i < len(h) && h[i].ObservedAt.Before(cutoff) {
			i++
		}
		removed += int64(i)
		if i == len(h) {
			delete(r.history, key)
			continue
		}
		r.history[key] = h[i:]
	}
	return removed, nil
}
