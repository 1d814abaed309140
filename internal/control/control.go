package control

import (
	"time"
)

// RunResult is the outcome of the last pass.
type RunResult string

const (
	ResultNone     RunResult = "none"
	ResultSuccess  RunResult = "success"
	ResultDegraded RunResult = "degraded"
	ResultFailure  RunResult = "failure"
	ResultSkipped  RunResult = "skipped"
)

// RunStatus describes the last finished pass.
type RunStatus struct {
	Result     RunResult     `json:"result"`
	RunID      string        `json:"run_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Wallets    int           `json:"wallets"`
	Fetched    int           `json:"fetched"`
	Error      string        `json:"error,omitempty"`
	Successive int           `json:"successive_failures"`
}

// StatusProvider exposes the last pass outcome to the health server.
type StatusProvider interface {
	LastRun() RunStatus
}
