// Package watcher runs one wallet watcher pass: it connects to every chain,
// resolves the configured wallets, checks their balances, raises or closes
// alerts and tops up wallets that run low.
package watcher

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/core/config"
	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/derivation"
	"github.com/api3dao/wallet-watcher/internal/infra/chain/evm"
	"github.com/api3dao/wallet-watcher/internal/infra/rpc"
	"github.com/api3dao/wallet-watcher/internal/infra/storage"
	"github.com/api3dao/wallet-watcher/internal/wallets"
)

// Options configures a Watcher.
type Options struct {
	Chains       map[domain.ChainID]config.ChainConfig
	Wallets      map[domain.ChainID][]domain.Wallet
	Registry     wallets.ProtocolRegistry
	Mnemonic     string
	ExplorerURLs map[domain.ChainID]string
	MonitorOnly  bool
	SendFunds    bool

	// Dial defaults to evm.Dial.
	Dial Dialer
	// Repo receives every fetched balance. Optional.
	Repo storage.BalanceRepository
	// BalanceRetry defaults to rpc.BalanceRetryConfig.
	BalanceRetry *rpc.RetryConfig
	Log          *slog.Logger
}

// FromConfig builds Options from the application config.
func FromConfig(cfg *config.AppConfig, sendFunds bool) Options {
	return Options{
		Chains:       cfg.Chains,
		Wallets:      cfg.Wallets,
		Registry:     wallets.NewProtocolRegistry(cfg.API3Xpub),
		Mnemonic:     cfg.Mnemonic,
		ExplorerURLs: cfg.ExplorerURLs,
		MonitorOnly:  cfg.MonitorOnly,
		SendFunds:    sendFunds,
	}
}

// Watcher performs watcher passes. It holds no state between passes.
type Watcher struct {
	opts         Options
	log          *slog.Logger
	balanceRetry rpc.RetryConfig
}

func New(opts Options) *Watcher {
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, rpcURL string) (evm.Backend, error) {
			return evm.Dial(ctx, rpcURL)
		}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	retry := rpc.BalanceRetryConfig
	if opts.BalanceRetry != nil {
		retry = *opts.BalanceRetry
	}
	return &Watcher{opts: opts, log: log, balanceRetry: retry}
}

// Report summarizes one pass.
type Report struct {
	RunID       uuid.UUID
	Wallets     int
	Fetched     int
	FetchFailed int
	Levels      map[Level]int
	TopUps      map[TopUpOutcome]int
	Duration    time.Duration
	// Err aggregates wallet-level failures. They never stop other wallets.
	Err error
}

// Degraded reports whether any wallet-level operation failed.
func (r *Report) Degraded() bool {
	return r.Err != nil
}

// Run performs one pass, sending alert commands through d. The returned error
// is set only for failures that invalidate the whole pass; wallet-level
// failures are collected in Report.Err.
func (w *Watcher) Run(ctx context.Context, d *alerting.Dispatcher) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:  uuid.New(),
		Levels: make(map[Level]int),
		TopUps: make(map[TopUpOutcome]int),
	}
	ctx = storage.WithRunID(ctx, report.RunID)
	log := w.log.With("run", report.RunID.String())
	defer d.Wait()

	var funderKey *ecdsa.PrivateKey
	if w.opts.Mnemonic != "" {
		key, err := derivation.FunderKey(w.opts.Mnemonic)
		if err != nil {
			log.Error("Failed to derive funder key, top-ups disabled", "error", err)
		} else {
			funderKey = key
		}
	}

	chains := InitChains(ctx, w.opts.Chains, funderKey, w.opts.Dial, log)
	names := make(map[domain.ChainID]string, len(chains))
	for id, c := range chains {
		names[id] = c.Name
	}

	resolved, err := wallets.Resolve(w.opts.Wallets, names, w.opts.Registry, w.opts.MonitorOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallets: %w", err)
	}
	report.Wallets = len(resolved.Wallets)
	w.reportUnconfigured(ctx, d, resolved.Unconfigured)

	statuses := w.fetchBalances(ctx, d, chains, resolved.Wallets)
	report.Fetched = len(statuses)
	report.FetchFailed = report.Wallets - report.Fetched
	log.Info("Balances fetched", "wallets", report.Wallets, "fetched", report.Fetched, "failed", report.FetchFailed)

	var errs error
	for _, s := range statuses {
		eval, err := Evaluate(s)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		report.Levels[eval.Level]++
		if eval.Raise != nil {
			d.RaiseBlocking(ctx, *eval.Raise)
		}
		for _, alias := range eval.Close {
			d.CloseBestEffort(ctx, alias)
		}
	}

	if !w.opts.MonitorOnly {
		results := w.topUps(ctx, d, chains, statuses)
		for _, r := range results {
			report.TopUps[r.Outcome]++
			errs = multierr.Append(errs, r.Err)
		}
	}

	if w.opts.Repo != nil && len(statuses) > 0 {
		if err := w.opts.Repo.AppendMany(ctx, statuses); err != nil {
			log.Warn("Failed to store balances", "error", err)
		}
	}

	report.Err = errs
	report.Duration = time.Since(start)
	log.Info("Pass finished",
		"duration", report.Duration,
		"clear", report.Levels[LevelClear],
		"warn", report.Levels[LevelWarn],
		"critical", report.Levels[LevelCritical],
		"degraded", report.Degraded(),
	)
	return report, nil
}

// topUps runs the top-up step for every funding target. Targets on different
// chains proceed in parallel; the chain's funder orders their nonces.
func (w *Watcher) topUps(
	ctx context.Context,
	d *alerting.Dispatcher,
	chains map[domain.ChainID]*ChainState,
	statuses []domain.WalletStatus,
) []TopUpResult {
	var targets []domain.WalletStatus
	for _, s := range statuses {
		if s.Wallet.FundingTarget() {
			targets = append(targets, s)
		}
	}
	results := make([]TopUpResult, len(targets))

	var g errgroup.Group
	for i, s := range targets {
		g.Go(func() error {
			results[i] = w.maybeTopUp(ctx, d, s, chains[s.ChainID])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// reportUnconfigured raises a config alert for every chain that has wallets
// but no chain config, and closes it for configured chains. Chains that are
// configured but could not be connected are not reported here.
func (w *Watcher) reportUnconfigured(ctx context.Context, d *alerting.Dispatcher, missing []domain.ChainID) {
	if !w.opts.MonitorOnly {
		return
	}
	for _, id := range missing {
		if _, ok := w.opts.Chains[id]; ok {
			continue
		}
		d.RaiseBlocking(ctx, alerting.Alert{
			Alias:       alerting.ChainAlias(alerting.ConcernNoChainConfig, id),
			Message:     fmt.Sprintf("Wallets configured for chain %s but the chain has no configuration", id),
			Description: fmt.Sprintf("%d wallet(s) on chain %s are not being monitored", len(w.opts.Wallets[id]), id),
			Priority:    alerting.P3,
		})
	}
	for id := range w.opts.Wallets {
		if _, ok := w.opts.Chains[id]; ok {
			d.CloseBestEffort(ctx, alerting.ChainAlias(alerting.ConcernNoChainConfig, id))
		}
	}
}
