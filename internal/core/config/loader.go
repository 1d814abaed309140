package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
)

const (
	DefaultHeartbeatName = "wallet-watcher"
	DefaultOpsGenieURL   = "https://api.opsgenie.com"
)

// Load reads configuration from a YAML (or JSON) file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw configuration bytes.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.OpsGenie.BaseURL == "" {
		cfg.OpsGenie.BaseURL = DefaultOpsGenieURL
	}
	if cfg.OpsGenie.HeartbeatName == "" {
		cfg.OpsGenie.HeartbeatName = DefaultHeartbeatName
	}
	if cfg.OpsGenie.Timeout == 0 {
		cfg.OpsGenie.Timeout = 10 * time.Second
	}
	if cfg.OpsGenie.MaxConcurrent == 0 {
		cfg.OpsGenie.MaxConcurrent = 10
	}
	if cfg.OpsGenie.MinSpacing == 0 {
		cfg.OpsGenie.MinSpacing = 100 * time.Millisecond
	}
	if cfg.Run.Timeout == 0 {
		cfg.Run.Timeout = 120 * time.Second
	}
	if cfg.Run.Attempts == 0 {
		cfg.Run.Attempts = 4
	}
	if cfg.Run.RetryDelay == 0 {
		cfg.Run.RetryDelay = 5 * time.Second
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "*/15 * * * *"
	}

	for id, chain := range cfg.Chains {
		if chain.Options != nil {
			if chain.Options.TxType == "" {
				chain.Options.TxType = TxTypeEIP1559
			}
			if chain.Options.LegacyMultiplier == 0 {
				chain.Options.LegacyMultiplier = 1
			}
			if chain.Options.BaseFeeMultiplier == 0 {
				chain.Options.BaseFeeMultiplier = 2
			}
		}
		cfg.Chains[id] = chain
	}

	for id, wallets := range cfg.Wallets {
		for i := range wallets {
			if wallets[i].MonitorType == "" {
				wallets[i].MonitorType = domain.MonitorTypeAlert
			}
		}
		cfg.Wallets[id] = wallets
	}
}

// Validate checks struct tags and the per-wallet rules tags cannot express.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	var errs []error
	funding := false
	for id, chain := range c.Chains {
		if _, ok := id.BigInt(); !ok {
			errs = append(errs, fmt.Errorf("chain %q: id is not an integer", id))
		}
		if chain.FundingEnabled() {
			funding = true
		}
	}
	if funding && c.Mnemonic == "" {
		errs = append(errs, errors.New("mnemonic is required when any chain has funding enabled"))
	}

	for id, wallets := range c.Wallets {
		for i, w := range wallets {
			if err := c.validateWallet(w); err != nil {
				errs = append(errs, fmt.Errorf("wallets[%s][%d]: %w", id, i, err))
			}
		}
	}
	return multierr.Combine(errs...)
}

func (c *AppConfig) validateWallet(w domain.Wallet) error {
	switch w.Type {
	case domain.WalletTypeProvider, domain.WalletTypeAPI3, domain.WalletTypeMonitor:
		if !common.IsHexAddress(w.Address) {
			return fmt.Errorf("%s wallet needs a valid address, got %q", w.Type, w.Address)
		}
	case domain.WalletTypeProviderSponsor, domain.WalletTypeAirseeker:
		if !common.IsHexAddress(w.Sponsor) {
			return fmt.Errorf("%s wallet needs a valid sponsor, got %q", w.Type, w.Sponsor)
		}
		if w.ProviderXpub == "" {
			return fmt.Errorf("%s wallet needs providerXpub", w.Type)
		}
	case domain.WalletTypeAPI3Sponsor:
		if !common.IsHexAddress(w.Sponsor) {
			return fmt.Errorf("%s wallet needs a valid sponsor, got %q", w.Type, w.Sponsor)
		}
		if c.API3Xpub == "" {
			return fmt.Errorf("%s wallet needs api3Xpub to be configured", w.Type)
		}
	default:
		return fmt.Errorf("unknown walletType %q", w.Type)
	}

	switch w.MonitorType {
	case domain.MonitorTypeAlert, domain.MonitorTypeMonitor:
	default:
		return fmt.Errorf("unknown monitorType %q", w.MonitorType)
	}

	if w.LowThreshold == nil {
		return nil
	}
	low, err := w.LowThreshold.LowWei()
	if err != nil {
		return err
	}
	critical, err := w.LowThreshold.CriticalWei()
	if err != nil {
		return err
	}
	if critical != nil && critical.Cmp(low) >= 0 {
		return fmt.Errorf("criticalValue %s must be lower than value %s", w.LowThreshold.CriticalValue, w.LowThreshold.Value)
	}
	return nil
}
