package watcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/infra/rpc"
	"github.com/api3dao/wallet-watcher/internal/metrics"
)

// fetchBalances queries every wallet concurrently. Wallets whose balance
// could not be read are left out of the result and reported as alerts.
func (w *Watcher) fetchBalances(
	ctx context.Context,
	d *alerting.Dispatcher,
	chains map[domain.ChainID]*ChainState,
	wallets []domain.ResolvedWallet,
) []domain.WalletStatus {
	results := make([]*domain.WalletStatus, len(wallets))

	var g errgroup.Group
	for i, rw := range wallets {
		g.Go(func() error {
			results[i] = w.fetchBalance(ctx, d, chains[rw.ChainID], rw)
			return nil
		})
	}
	_ = g.Wait()

	statuses := make([]domain.WalletStatus, 0, len(wallets))
	for _, s := range results {
		if s != nil {
			statuses = append(statuses, *s)
		}
	}
	return statuses
}

func (w *Watcher) fetchBalance(
	ctx context.Context,
	d *alerting.Dispatcher,
	chain *ChainState,
	rw domain.ResolvedWallet,
) *domain.WalletStatus {
	alias := alerting.Alias(alerting.ConcernGetBalanceError, rw.Address, rw.ChainID)
	log := w.log.With("chain", rw.ChainName, "address", rw.Address.Hex(), "type", rw.Wallet.Type)

	balance, err := rpc.Do(ctx, w.balanceRetry,
		func(ctx context.Context) (*big.Int, error) {
			return chain.Client.BalanceAt(ctx, rw.Address, nil)
		},
		func(attempt int, err error) {
			metrics.RPCRetriesTotal.WithLabelValues(string(rw.ChainID), "eth_getBalance").Inc()
			log.Warn("Balance query failed", "attempt", attempt, "error", err)
		},
	)
	if err != nil {
		metrics.BalanceFetchErrorsTotal.WithLabelValues(string(rw.ChainID)).Inc()
		log.Error("Unable to get balance", "error", err)
		if rw.Wallet.Alerting() {
			d.RaiseBlocking(ctx, alerting.Alert{
				Alias:       alias,
				Message:     fmt.Sprintf("Unable to get balance for address %s on chain %s", rw.Address.Hex(), rw.ChainName),
				Description: fmt.Sprintf("Error: %v", err),
				Priority:    alerting.P2,
			})
		}
		return nil
	}

	if rw.Wallet.Alerting() {
		d.CloseBestEffort(ctx, alias)
	}

	f, _ := new(big.Float).SetInt(balance).Float64()
	metrics.WalletBalance.WithLabelValues(string(rw.ChainID), rw.Address.Hex(), string(rw.Wallet.Type)).Set(f)

	return &domain.WalletStatus{
		ResolvedWallet: rw,
		Balance:        balance,
		ObservedAt:     time.Now().UTC(),
	}
}
