// Package health serves liveness, metrics and the latest wallet balances.
package health

import (
	"github.com/api3dao/wallet-watcher/internal/control"
)

// SystemStatus represents the overall health state of the watcher.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report is the /health response body.
type Report struct {
	Status  SystemStatus      `json:"status"`
	LastRun control.RunStatus `json:"last_run"`
}

// StatusOf maps a pass outcome to a system status. Only failed passes are
// critical; wallet-level errors degrade.
func StatusOf(run control.RunStatus) SystemStatus {
	switch run.Result {
	case control.ResultFailure:
		return StatusCritical
	case control.ResultDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
