// Package alerting raises and closes alerts in an external incident sink
// using deterministic aliases.
package alerting

import (
	"context"
	"log/slog"
)

// Priority mirrors the sink's P1 (most urgent) to P5 scale.
type Priority string

const (
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
	P4 Priority = "P4"
	P5 Priority = "P5"
)

// Alert is a raise request.
type Alert struct {
	Alias       string
	Message     string
	Description string
	Priority    Priority
}

// OpenAlert is an alert currently open in the sink.
type OpenAlert struct {
	ID    string
	Alias string
}

// Sink is the external alerting service.
type Sink interface {
	// Raise opens an alert or updates the open alert with the same alias.
	Raise(ctx context.Context, alert Alert) error

	// Close closes the open alert with alias.
	Close(ctx context.Context, alias string) error

	// ListOpen returns currently open alerts.
	ListOpen(ctx context.Context) ([]OpenAlert, error)

	// Heartbeat pings the named heartbeat.
	Heartbeat(ctx context.Context, name string) error
}

// LogSink writes alerts to the log instead of a remote service.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s LogSink) Raise(ctx context.Context, alert Alert) error {
	s.logger().Warn("Alert",
		"alias", alert.Alias,
		"priority", alert.Priority,
		"message", alert.Message,
		"description", alert.Description,
	)
	return nil
}

func (s LogSink) Close(ctx context.Context, alias string) error {
	s.logger().Debug("Close alert", "alias", alias)
	return nil
}

func (s LogSink) ListOpen(ctx context.Context) ([]OpenAlert, error) {
	return nil, nil
}

func (s LogSink) Heartbeat(ctx context.Context, name string) error {
	s.logger().Debug("Heartbeat", "name", name)
	return nil
}
