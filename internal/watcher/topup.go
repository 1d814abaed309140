package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime/debug"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/infra/chain/evm"
	"github.com/api3dao/wallet-watcher/internal/infra/rpc"
	"github.com/api3dao/wallet-watcher/internal/metrics"
)

// SendFundsEnv enables real fund movement when set to a true value.
const SendFundsEnv = "WALLET_ENABLE_SEND_FUNDS"

// ErrNoFunder is reported for funding targets on chains without a funder.
var ErrNoFunder = errors.New("no funder for chain")

// TopUpOutcome is what happened to one wallet in the top-up step.
type TopUpOutcome string

const (
	TopUpNotNeeded TopUpOutcome = "not_needed"
	TopUpNoFunder  TopUpOutcome = "no_funder"
	TopUpDryRun    TopUpOutcome = "dry_run"
	TopUpSent      TopUpOutcome = "sent"
	TopUpFailed    TopUpOutcome = "error"
)

// TopUpResult describes a top-up attempt.
type TopUpResult struct {
	Outcome TopUpOutcome
	TxHash  common.Hash
	Amount  *big.Int
	// Err is set for the no_funder and error outcomes.
	Err error
}

// maybeTopUp funds s from its chain's funder when the balance is at or below
// the wallet's low threshold. Every failure becomes an alert.
func (w *Watcher) maybeTopUp(
	ctx context.Context,
	d *alerting.Dispatcher,
	s domain.WalletStatus,
	chain *ChainState,
) (result TopUpResult) {
	addr := s.Address.Hex()
	log := w.log.With("chain", s.ChainName, "address", addr)
	errorAlias := alerting.Alias(alerting.ConcernTopUpError, s.Address, s.ChainID)

	defer func() {
		metrics.TopUpsTotal.WithLabelValues(string(s.ChainID), string(result.Outcome)).Inc()
	}()

	d.CloseBestEffort(ctx, alerting.Alias(alerting.ConcernFreshlyToppedUp, s.Address, s.ChainID))

	defer func() {
		if r := recover(); r != nil {
			result = w.topUpFailed(ctx, d, s, errorAlias, fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	if chain == nil || chain.Funder == nil {
		d.RaiseBlocking(ctx, alerting.Alert{
			Alias:    alerting.Alias(alerting.ConcernNoSponsor, s.Address, s.ChainID),
			Message:  fmt.Sprintf("Can't find a valid global sponsor for %s on %s", addr, s.ChainName),
			Priority: alerting.P1,
		})
		return TopUpResult{
			Outcome: TopUpNoFunder,
			Err:     fmt.Errorf("%s on %s: %w", addr, s.ChainName, ErrNoFunder),
		}
	}
	d.CloseBestEffort(ctx, alerting.Alias(alerting.ConcernNoSponsor, s.Address, s.ChainID))

	low, err := s.Wallet.LowThreshold.LowWei()
	if err != nil {
		return w.topUpFailed(ctx, d, s, errorAlias, err, debug.Stack())
	}
	if s.Balance.Cmp(low) > 0 {
		return TopUpResult{Outcome: TopUpNotNeeded}
	}

	result, err = w.topUp(ctx, d, s, chain)
	if err != nil {
		return w.topUpFailed(ctx, d, s, errorAlias, err, debug.Stack())
	}
	d.CloseBestEffort(ctx, errorAlias)
	log.Info("Top-up finished", "outcome", result.Outcome, "tx", result.TxHash.Hex(), "amount", result.Amount)
	return result
}

func (w *Watcher) topUp(
	ctx context.Context,
	d *alerting.Dispatcher,
	s domain.WalletStatus,
	chain *ChainState,
) (TopUpResult, error) {
	cfg := chain.Config
	funder := chain.Funder

	funderBalance, err := rpc.Do(ctx, w.balanceRetry, funder.Balance, nil)
	if err != nil {
		return TopUpResult{}, err
	}
	f, _ := new(big.Float).SetInt(funderBalance).Float64()
	metrics.FunderBalance.WithLabelValues(string(chain.ID)).Set(f)

	warn, err := cfg.GlobalSponsorLowBalanceWarn.Wei()
	if err != nil {
		return TopUpResult{}, fmt.Errorf("invalid globalSponsorLowBalanceWarn: %w", err)
	}
	funderAlias := alerting.Alias(alerting.ConcernLowFunderBalance, funder.Address(), chain.ID)
	if funderBalance.Cmp(warn) < 0 {
		d.RaiseBlocking(ctx, alerting.Alert{
			Alias:    funderAlias,
			Message:  fmt.Sprintf("Low balance on primary top-up sponsor for chain %s", chain.Name),
			Priority: alerting.P3,
			Description: fmt.Sprintf("Current balance: %s\nThreshold: %s\nSponsor: %s",
				funderBalance, warn, w.explorerLink(chain.ID, "address", funder.Address().Hex())),
		})
	} else {
		d.CloseBestEffort(ctx, funderAlias)
	}

	amount, err := cfg.TopUpAmount.Wei()
	if err != nil {
		return TopUpResult{}, fmt.Errorf("invalid topUpAmount: %w", err)
	}
	opts, err := feeOptions(cfg.Options)
	if err != nil {
		return TopUpResult{}, fmt.Errorf("invalid funding options: %w", err)
	}
	fees, err := evm.SuggestFees(ctx, chain.Client, opts)
	if err != nil {
		return TopUpResult{}, err
	}

	freshAlias := alerting.Alias(alerting.ConcernFreshlyToppedUp, s.Address, s.ChainID)
	addr := s.Address.Hex()

	if !w.opts.SendFunds {
		d.RaiseBlocking(ctx, alerting.Alert{
			Alias:    freshAlias,
			Message:  fmt.Sprintf("(would have) Just topped up %s on %s", addr, s.ChainName),
			Priority: alerting.P5,
			Description: w.topUpDescription(s, amount, fees, "not-applicable",
				fmt.Sprintf("DID NOT ACTUALLY SEND FUNDS! %s is not set", SendFundsEnv)),
		})
		return TopUpResult{Outcome: TopUpDryRun, Amount: amount}, nil
	}

	tx, err := funder.Send(ctx, s.Address, amount, fees)
	if err != nil {
		return TopUpResult{}, err
	}
	if _, err := funder.Wait(ctx, tx); err != nil {
		return TopUpResult{}, fmt.Errorf("transaction %s not confirmed: %w", tx.Hash().Hex(), err)
	}

	d.RaiseBlocking(ctx, alerting.Alert{
		Alias:       freshAlias,
		Message:     fmt.Sprintf("Just topped up %s on %s", addr, s.ChainName),
		Priority:    alerting.P5,
		Description: w.topUpDescription(s, amount, fees, tx.Hash().Hex(), ""),
	})
	return TopUpResult{Outcome: TopUpSent, TxHash: tx.Hash(), Amount: amount}, nil
}

func (w *Watcher) topUpFailed(
	ctx context.Context,
	d *alerting.Dispatcher,
	s domain.WalletStatus,
	alias string,
	err error,
	stack []byte,
) TopUpResult {
	w.log.Error("Top-up failed", "chain", s.ChainName, "address", s.Address.Hex(), "error", err)
	d.RaiseBlocking(ctx, alerting.Alert{
		Alias:       alias,
		Message:     "An error occurred while trying to top up a wallet",
		Priority:    alerting.P1,
		Description: fmt.Sprintf("Wallet: %s on %s\nError: %v\nStack Trace: %s", s.Address.Hex(), s.ChainName, err, stack),
	})
	return TopUpResult{
		Outcome: TopUpFailed,
		Err:     fmt.Errorf("failed to top up %s on %s: %w", s.Address.Hex(), s.ChainName, err),
	}
}

func (w *Watcher) topUpDescription(s domain.WalletStatus, amount *big.Int, fees *evm.GasParams, txHash, header string) string {
	var lines []string
	if header != "" {
		lines = append(lines, header)
	}
	tx := txHash
	if txHash != "not-applicable" {
		tx = w.explorerLink(s.ChainID, "tx", txHash)
	}
	lines = append(lines,
		fmt.Sprintf("Type of wallet: %s", s.Wallet.Type),
		fmt.Sprintf("Address: %s", w.explorerLink(s.ChainID, "address", s.Address.Hex())),
		fmt.Sprintf("Transaction: %s", tx),
		fmt.Sprintf("Amount: %s wei", amount),
		fmt.Sprintf("Fees: %s", fees),
	)
	return strings.Join(lines, "\n")
}

// explorerLink builds <explorer>/<kind>/<value>, or returns value when the
// chain has no explorer configured.
func (w *Watcher) explorerLink(chainID domain.ChainID, kind, value string) string {
	base, ok := w.opts.ExplorerURLs[chainID]
	if !ok || base == "" {
		return value
	}
	return strings.TrimSuffix(base, "/") + "/" + kind + "/" + value
}

