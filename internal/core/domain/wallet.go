package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WalletType tags the kind of a configured wallet.
type WalletType string

const (
	WalletTypeProvider        WalletType = "Provider"
	WalletTypeAPI3            WalletType = "API3"
	WalletTypeProviderSponsor WalletType = "Provider-Sponsor"
	WalletTypeAPI3Sponsor     WalletType = "API3-Sponsor"
	WalletTypeAirseeker       WalletType = "Airseeker"
	WalletTypeMonitor         WalletType = "Monitor"
)

// WalletTypes lists every supported kind.
var WalletTypes = []WalletType{
	WalletTypeProvider,
	WalletTypeAPI3,
	WalletTypeProviderSponsor,
	WalletTypeAPI3Sponsor,
	WalletTypeAirseeker,
	WalletTypeMonitor,
}

// IsDerived reports whether the kind's address comes from a sponsor derivation.
func (t WalletType) IsDerived() bool {
	switch t {
	case WalletTypeProviderSponsor, WalletTypeAPI3Sponsor, WalletTypeAirseeker:
		return true
	}
	return false
}

type MonitorType string

const (
	// MonitorTypeAlert wallets are evaluated against their thresholds.
	MonitorTypeAlert MonitorType = "alert"
	// MonitorTypeMonitor wallets are only observed and recorded.
	MonitorTypeMonitor MonitorType = "monitor"
)

// Wallet is one configured wallet entry. Which of Address, Sponsor and
// ProviderXpub are meaningful depends on Type.
type Wallet struct {
	Type         WalletType  `yaml:"walletType"   json:"walletType"`
	Name         string      `yaml:"name"         json:"name,omitempty"`
	Address      string      `yaml:"address"      json:"address,omitempty"`
	Sponsor      string      `yaml:"sponsor"      json:"sponsor,omitempty"`
	ProviderXpub string      `yaml:"providerXpub" json:"providerXpub,omitempty"`
	MonitorType  MonitorType `yaml:"monitorType"  json:"monitorType,omitempty"`
	LowThreshold *Threshold  `yaml:"lowThreshold" json:"-"`
}

// Alerting reports whether balance thresholds should be evaluated.
func (w Wallet) Alerting() bool {
	return w.MonitorType != MonitorTypeMonitor && w.LowThreshold != nil
}

// FundingTarget reports whether the wallet may receive top-ups.
func (w Wallet) FundingTarget() bool {
	return w.Type != WalletTypeMonitor && w.Alerting()
}

// ResolvedWallet is a wallet bound to a concrete address on one chain.
type ResolvedWallet struct {
	Wallet    Wallet         `json:"wallet"`
	Address   common.Address `json:"address"`
	ChainID   ChainID        `json:"chainId"`
	ChainName string         `json:"chainName"`
}

// Key identifies a resolved wallet for deduplication.
func (w ResolvedWallet) Key() string {
	return w.Address.Hex() + "@" + string(w.ChainID)
}

// WalletStatus is a resolved wallet with an observed balance.
type WalletStatus struct {
	ResolvedWallet
	Balance    *big.Int  `json:"balance"`
	ObservedAt time.Time `json:"observedAt"`
}
