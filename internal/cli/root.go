package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/api3dao/wallet-watcher/internal/control"
	"github.com/api3dao/wallet-watcher/internal/core/config"
	"github.com/api3dao/wallet-watcher/internal/watcher"
)

var (
	cfgPath     string
	isDebug     bool
	monitorOnly bool
)

var rootCmd = &cobra.Command{
	Use:   "wallet-watcher",
	Short: "Check wallet balances, raise alerts and top up low wallets",
	Long: `wallet-watcher checks the native balance of configured wallets on every
configured chain, raises or closes OpsGenie alerts and tops up wallets that
fall below their threshold. Without a subcommand it performs a single pass.

Real transfers are only sent when ` + watcher.SendFundsEnv + ` is true.`,
	Run: runOnce,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&monitorOnly, "monitor-only", false, "only record balances and report unconfigured chains, never top up")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if monitorOnly {
		cfg.MonitorOnly = true
	}
	return cfg, nil
}

// setup loads .env and the config and installs the logger. It exits on
// failure.
func setup() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// sendFundsEnabled reads the real-transfer toggle. Anything but a true value
// keeps the watcher in dry-run mode.
func sendFundsEnabled() bool {
	raw, ok := os.LookupEnv(watcher.SendFundsEnv)
	if !ok || raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Unrecognized send-funds value, staying in dry run", "env", watcher.SendFundsEnv, "value", raw)
		return false
	}
	return v
}

func newRunner(ctx context.Context, cfg *config.AppConfig) *control.Runner {
	send := sendFundsEnabled()
	if !send {
		slog.Warn("Dry run, top-ups will not be sent", "env", watcher.SendFundsEnv)
	}
	runner, err := control.NewRunner(ctx, control.Options{
		Config:    cfg,
		Load:      loadConfig,
		SendFunds: send,
	})
	if err != nil {
		slog.Error("Failed to initialize runner", "error", err)
		os.Exit(1)
	}
	return runner
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := newRunner(ctx, cfg)
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Warn("Failed to close runner", "error", err)
		}
	}()

	if err := runner.RunOnce(ctx); err != nil {
		slog.Error("Watcher pass failed", "error", err)
		_ = runner.Close()
		os.Exit(1)
	}
}
