// Package wallets turns configured wallet entries into one resolved wallet
// per (address, chain).
package wallets

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
	"github.com/api3dao/wallet-watcher/internal/derivation"
)

var ErrUnknownWalletType = errors.New("unknown wallet type")

// ProtocolRegistry holds the derivation inputs for sponsor wallet kinds.
type ProtocolRegistry struct {
	// API3Xpub is the operator key used for API3-Sponsor wallets.
	API3Xpub string
	// Protocols maps derived kinds to their protocol id.
	Protocols map[domain.WalletType]string
}

// NewProtocolRegistry returns the registry with the standard protocol ids.
func NewProtocolRegistry(api3Xpub string) ProtocolRegistry {
	return ProtocolRegistry{
		API3Xpub: api3Xpub,
		Protocols: map[domain.WalletType]string{
			domain.WalletTypeProviderSponsor: derivation.ProtocolPSP,
			domain.WalletTypeAPI3Sponsor:     derivation.ProtocolPSP,
			domain.WalletTypeAirseeker:       derivation.ProtocolAirseeker,
		},
	}
}

// Address returns the single address w resolves to.
func (r ProtocolRegistry) Address(w domain.Wallet) (common.Address, error) {
	switch w.Type {
	case domain.WalletTypeProvider, domain.WalletTypeAPI3, domain.WalletTypeMonitor:
		if !common.IsHexAddress(w.Address) {
			return common.Address{}, fmt.Errorf("%s wallet has invalid address %q", w.Type, w.Address)
		}
		return common.HexToAddress(w.Address), nil
	case domain.WalletTypeProviderSponsor, domain.WalletTypeAirseeker:
		return r.derive(w, w.ProviderXpub)
	case domain.WalletTypeAPI3Sponsor:
		return r.derive(w, r.API3Xpub)
	default:
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownWalletType, w.Type)
	}
}

func (r ProtocolRegistry) derive(w domain.Wallet, xpub string) (common.Address, error) {
	protocol, ok := r.Protocols[w.Type]
	if !ok {
		return common.Address{}, fmt.Errorf("no protocol id registered for %s", w.Type)
	}
	if xpub == "" {
		return common.Address{}, fmt.Errorf("no extended public key for %s wallet", w.Type)
	}
	if !common.IsHexAddress(w.Sponsor) {
		return common.Address{}, fmt.Errorf("%s wallet has invalid sponsor %q", w.Type, w.Sponsor)
	}
	addr, err := derivation.Derive(common.HexToAddress(w.Sponsor), xpub, protocol)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to derive %s wallet for sponsor %s: %w", w.Type, w.Sponsor, err)
	}
	return addr, nil
}

// Result is the output of Resolve.
type Result struct {
	Wallets []domain.ResolvedWallet
	// Unconfigured lists chains that had wallets but no chain config. Only
	// filled in monitor-only mode.
	Unconfigured []domain.ChainID
}

// Resolve derives every wallet's address, keeps the entry with the highest
// low threshold per (address, chain) and drops wallets on chains missing
// from chainNames. Output order is chain id, then first appearance in config.
func Resolve(
	walletsByChain map[domain.ChainID][]domain.Wallet,
	chainNames map[domain.ChainID]string,
	registry ProtocolRegistry,
	monitorOnly bool,
) (*Result, error) {
	ids := make([]domain.ChainID, 0, len(walletsByChain))
	for id := range walletsByChain {
		ids = append(ids, id)
	}
	domain.SortChainIDs(ids)

	result := &Result{}
	index := make(map[string]int)

	for _, chainID := range ids {
		name, configured := chainNames[chainID]
		if !configured {
			if monitorOnly && len(walletsByChain[chainID]) > 0 {
				result.Unconfigured = append(result.Unconfigured, chainID)
			}
			continue
		}

		for _, w := range walletsByChain[chainID] {
			addr, err := registry.Address(w)
			if err != nil {
				return nil, err
			}
			resolved := domain.ResolvedWallet{
				Wallet:    w,
				Address:   addr,
				ChainID:   chainID,
				ChainName: name,
			}

			key := resolved.Key()
			i, seen := index[key]
			if !seen {
				index[key] = len(result.Wallets)
				result.Wallets = append(result.Wallets, resolved)
				continue
			}
			higher, err := higherThreshold(resolved.Wallet, result.Wallets[i].Wallet)
			if err != nil {
				return nil, err
			}
			if higher {
				result.Wallets[i] = resolved
			}
		}
	}
	return result, nil
}

// higherThreshold reports whether a's low threshold is strictly above b's.
// A wallet without a threshold ranks below any wallet with one.
func higherThreshold(a, b domain.Wallet) (bool, error) {
	aw, err := lowWei(a)
	if err != nil {
		return false, err
	}
	bw, err := lowWei(b)
	if err != nil {
		return false, err
	}
	switch {
	case aw == nil:
		return false, nil
	case bw == nil:
		return true, nil
	}
	return aw.Cmp(bw) > 0, nil
}

func lowWei(w domain.Wallet) (*big.Int, error) {
	if w.LowThreshold == nil {
		return nil, nil
	}
	return w.LowThreshold.LowWei()
}
