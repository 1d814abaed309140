package watcher

import (
	"fmt"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

// Level is the outcome of comparing a balance with its thresholds.
type Level int

const (
	LevelSkip Level = iota
	LevelClear
	LevelWarn
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelClear:
		return "clear"
	case LevelWarn:
		return "warn"
	case LevelCritical:
		return "critical"
	default:
		return "skip"
	}
}

// Evaluation lists the alert commands implied by a balance.
type Evaluation struct {
	Level Level
	Raise *alerting.Alert
	Close []string
}

// Evaluate compares s against its wallet's thresholds in wei. A balance
// equal to a threshold counts as below it. Exactly one of the low and
// critical aliases is left open.
func Evaluate(s domain.WalletStatus) (Evaluation, error) {
	if !s.Wallet.Alerting() {
		return Evaluation{Level: LevelSkip}, nil
	}

	low, err := s.Wallet.LowThreshold.LowWei()
	if err != nil {
		return Evaluation{}, fmt.Errorf("invalid threshold for %s on %s: %w", s.Address.Hex(), s.ChainID, err)
	}
	critical, err := s.Wallet.LowThreshold.CriticalWei()
	if err != nil {
		return Evaluation{}, fmt.Errorf("invalid critical threshold for %s on %s: %w", s.Address.Hex(), s.ChainID, err)
	}

	lowAlias := alerting.Alias(alerting.ConcernLowBalance, s.Address, s.ChainID)
	criticalAlias := alerting.Alias(alerting.ConcernCriticalLowBalance, s.Address, s.ChainID)

	if s.Balance.Cmp(low) > 0 {
		return Evaluation{Level: LevelClear, Close: []string{lowAlias, criticalAlias}}, nil
	}

	if critical != nil && s.Balance.Cmp(critical) <= 0 {
		return Evaluation{
			Level: LevelCritical,
			Raise: &alerting.Alert{
				Alias:    criticalAlias,
				Message:  fmt.Sprintf("Critical low balance alert for address %s on chain %s", s.Address.Hex(), s.ChainName),
				Priority: alerting.P1,
				Description: fmt.Sprintf("Current balance: %s\nThreshold: %s\nCritical threshold: %s",
					s.Balance, low, critical),
			},
			Close: []string{lowAlias},
		}, nil
	}

	return Evaluation{
		Level: LevelWarn,
		Raise: &alerting.Alert{
			Alias:       lowAlias,
			Message:     fmt.Sprintf("Low balance alert for address %s on chain %s", s.Address.Hex(), s.ChainName),
			Priority:    alerting.P2,
			Description: fmt.Sprintf("Current balance: %s\nThreshold: %s", s.Balance, low),
		},
		Close: []string{criticalAlias},
	}, nil
}
