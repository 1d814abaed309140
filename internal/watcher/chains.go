package watcher

import (
	"context"
	"crypto/ecdsa"
	"log/slog"

	"github.com/api3dao/wallet-watcher/internal/core/config"
	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/infra/chain/evm"
)

// ChainState is the per-run connection to one chain. Funder is nil when
// funding is disabled for the chain.
type ChainState struct {
	ID     domain.ChainID
	Name   string
	Config config.ChainConfig
	Client evm.Backend
	Funder *evm.Funder
}

// Dialer opens a read connection to an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (evm.Backend, error)

// InitChains connects to every configured chain. Chains that cannot be
// connected are logged and left out. funderKey may be nil, in which case no
// chain gets a funder.
func InitChains(
	ctx context.Context,
	chains map[domain.ChainID]config.ChainConfig,
	funderKey *ecdsa.PrivateKey,
	dial Dialer,
	log *slog.Logger,
) map[domain.ChainID]*ChainState {
	states := make(map[domain.ChainID]*ChainState, len(chains))
	for id, cfg := range chains {
		chainID, ok := id.BigInt()
		if !ok {
			log.Error("Skipping chain with non-numeric id", "chain", id)
			continue
		}

		client, err := dial(ctx, cfg.RPC)
		if err != nil {
			log.Error("Skipping chain, failed to connect", "chain", id, "name", cfg.Name, "error", err)
			continue
		}

		state := &ChainState{
			ID:     id,
			Name:   cfg.Name,
			Config: cfg,
			Client: client,
		}
		if cfg.FundingEnabled() && funderKey != nil {
			state.Funder = evm.NewFunder(client, funderKey, chainID)
		}
		states[id] = state

		log.Debug("Chain initialized", "chain", id, "name", cfg.Name, "funding", state.Funder != nil)
	}
	return states
}

// feeOptions maps chain funding options onto the fee calculator's.
func feeOptions(opts *config.FundingOptions) (evm.FeeOptions, error) {
	if opts == nil {
		return evm.FeeOptions{}, nil
	}
	out := evm.FeeOptions{
		Legacy:            opts.TxType == config.TxTypeLegacy,
		LegacyMultiplier:  opts.LegacyMultiplier,
		BaseFeeMultiplier: opts.BaseFeeMultiplier,
	}
	if opts.PriorityFee != nil {
		fee, err := opts.PriorityFee.Wei()
		if err != nil {
			return evm.FeeOptions{}, err
		}
		out.PriorityFee = fee
	}
	return out, nil
}
