package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/api3dao/wallet-watcher/internal/core/worker"
	"github.com/api3dao/wallet-watcher/internal/health"
)

var runAtStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run passes on the configured schedule and serve health endpoints",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runAtStart, "run-at-start", true, "perform a pass immediately on startup")
	rootCmd.AddCommand(serveCmd)
}

// cronLogger sends cron's own logs to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newRunner(ctx, cfg)

	server := health.NewServer(runner, runner.Repo(), cfg.Server.Port)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()

	if cfg.HistoryRetention > 0 {
		go worker.NewPruner(cfg.HistoryRetention, runner.Repo()).Start(ctx)
	}

	logger := cronLogger{log: slog.Default().With("component", "cron")}
	scheduler := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	), cron.WithLogger(logger))

	pass := func() {
		if err := runner.RunOnce(ctx); err != nil {
			slog.Error("Watcher pass failed", "error", err)
		}
	}
	id, err := scheduler.AddFunc(cfg.Schedule, pass)
	if err != nil {
		slog.Error("Invalid schedule", "schedule", cfg.Schedule, "error", err)
		os.Exit(1)
	}

	if runAtStart {
		// The wrapped job carries SkipIfStillRunning, so a tick that fires
		// during the start-up pass is dropped.
		go scheduler.Entry(id).WrappedJob.Run()
	}
	scheduler.Start()
	slog.Info("Wallet watcher started",
		"config", cfgPath,
		"schedule", cfg.Schedule,
		"health", fmt.Sprintf(":%d", cfg.Server.Port),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Stop returns a context that is done once running passes finish.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		slog.Warn("Pass still running at shutdown, cancelling")
		cancel()
	}

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	if err := runner.Close(); err != nil {
		slog.Warn("Failed to close runner", "error", err)
	}
}
