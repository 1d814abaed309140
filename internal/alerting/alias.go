package alerting

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

// Concern tags prefix every alias.
const (
	ConcernGetBalanceError    = "get-balance-error"
	ConcernLowBalance         = "low-balance"
	ConcernCriticalLowBalance = "critical-low-balance"
	ConcernFreshlyToppedUp    = "freshly-topped-up"
	ConcernNoSponsor          = "no-sponsor"
	ConcernLowFunderBalance   = "low-master-sponsor-balance"
	ConcernTopUpError         = "error-while-topping-up-wallet"
	ConcernNoChainConfig      = "no-chain-config"
)

// Run-level aliases.
const (
	AliasRunFailure             = "wallet-watcher-run-failure"
	AliasOpenAlertsCacheFailure = "opsgenie-open-alerts-cache-failure"
)

// Alias returns the alias for concern about address on chainID:
// concern-keccak256(checksumAddress || chainID).
func Alias(concern string, address common.Address, chainID domain.ChainID) string {
	return concern + "-" + crypto.Keccak256Hash([]byte(address.Hex()+string(chainID))).Hex()
}

// ChainAlias returns the alias for a chain-wide concern.
func ChainAlias(concern string, chainID domain.ChainID) string {
	return concern + "-" + crypto.Keccak256Hash([]byte(chainID)).Hex()
}
