package config

import (
	"time"

	"github.com/api3dao/wallet-watcher/internal/core/domain"
	redisclient "github.com/api3dao/wallet-watcher/internal/infra/redis"
	"github.com/api3dao/wallet-watcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig                       `yaml:"server"`
	Logging      LoggingConfig                      `yaml:"logging"`
	Mnemonic     string                             `yaml:"mnemonic"`
	API3Xpub     string                             `yaml:"api3Xpub"`
	MonitorOnly  bool                               `yaml:"monitorOnly"`
	Chains       map[domain.ChainID]ChainConfig     `yaml:"chains"       validate:"required,dive"`
	Wallets      map[domain.ChainID][]domain.Wallet `yaml:"wallets"`
	ExplorerURLs map[domain.ChainID]string          `yaml:"explorerUrls"`
	OpsGenie     OpsGenieConfig                     `yaml:"opsgenie"`
	Run          RunConfig                          `yaml:"run"`
	Schedule     string                             `yaml:"schedule"`
	Redis        redisclient.Config                 `yaml:"redis"`
	Database     postgres.Config                    `yaml:"database"`
	// HistoryRetention bounds stored balance history; zero keeps everything.
	HistoryRetention time.Duration `yaml:"historyRetention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for a specific chain. Funding is enabled only
// when TopUpAmount, GlobalSponsorLowBalanceWarn and Options are all present.
type ChainConfig struct {
	RPC                         string          `yaml:"rpc"                         validate:"required,url"`
	Name                        string          `yaml:"name"                        validate:"required"`
	TopUpAmount                 *domain.Amount  `yaml:"topUpAmount"`
	GlobalSponsorLowBalanceWarn *domain.Amount  `yaml:"globalSponsorLowBalanceWarn"`
	Options                     *FundingOptions `yaml:"options"`
}

// FundingEnabled reports whether top-ups can be sent on the chain.
func (c ChainConfig) FundingEnabled() bool {
	return c.TopUpAmount != nil && c.GlobalSponsorLowBalanceWarn != nil && c.Options != nil
}

type TxType string

const (
	TxTypeLegacy  TxType = "legacy"
	TxTypeEIP1559 TxType = "eip1559"
)

// FundingOptions controls fee pricing of top-up transactions.
type FundingOptions struct {
	TxType            TxType         `yaml:"txType"            validate:"omitempty,oneof=legacy eip1559"`
	LegacyMultiplier  float64        `yaml:"legacyMultiplier"  validate:"gte=0"`
	BaseFeeMultiplier float64        `yaml:"baseFeeMultiplier" validate:"gte=0"`
	PriorityFee       *domain.Amount `yaml:"priorityFee"`
}

// OpsGenieConfig holds alerting sink credentials. An empty APIKey selects
// the log-only sink.
type OpsGenieConfig struct {
	APIKey        string        `yaml:"apiKey"`
	BaseURL       string        `yaml:"baseUrl"       validate:"omitempty,url"`
	HeartbeatName string        `yaml:"heartbeatName"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int64         `yaml:"maxConcurrent" validate:"gte=0"`
	MinSpacing    time.Duration `yaml:"minSpacing"`
}

// RunConfig bounds a single pass.
type RunConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Attempts   int           `yaml:"attempts"   validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retryDelay"`
}
