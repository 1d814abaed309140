// Package alertingtest provides an in-memory alerting.Sink for tests.
package alertingtest

import (
	"context"
	"strings"
	"sync"

	"github.com/api3dao/wallet-watcher/internal/alerting"
)

// Call is one recorded sink call.
type Call struct {
	Action string // raise, close, list, heartbeat
	Alias  string
	Alert  alerting.Alert
}

// Recorder records every call and tracks which aliases are open.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	open     map[string]struct{}
	ListErr  error
	RaiseErr error
}

// NewRecorder returns a Recorder whose sink initially has the given aliases open.
func NewRecorder(open ...string) *Recorder {
	r := &Recorder{open: make(map[string]struct{})}
	for _, alias := range open {
		r.open[alias] = struct{}{}
	}
	return r
}

func (r *Recorder) Raise(ctx context.Context, alert alerting.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: "raise", Alias: alert.Alias, Alert: alert})
	if r.RaiseErr != nil {
		return r.RaiseErr
	}
	r.open[alert.Alias] = struct{}{}
	return nil
}

func (r *Recorder) Close(ctx context.Context, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: "close", Alias: alias})
	delete(r.open, alias)
	return nil
}

func (r *Recorder) ListOpen(ctx context.Context) ([]alerting.OpenAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: "list"})
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]alerting.OpenAlert, 0, len(r.open))
	for alias := range r.open {
		out = append(out, alerting.OpenAlert{ID: "id-" + alias, Alias: alias})
	}
	return out, nil
}

func (r *Recorder) Heartbeat(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: "heartbeat", Alias: name})
	return nil
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Raised returns raised alerts whose alias starts with prefix.
func (r *Recorder) Raised(prefix string) []alerting.Alert {
	var out []alerting.Alert
	for _, c := range r.Calls() {
		if c.Action == "raise" && strings.HasPrefix(c.Alias, prefix) {
			out = append(out, c.Alert)
		}
	}
	return out
}

// Closed returns closed aliases that start with prefix.
func (r *Recorder) Closed(prefix string) []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Action == "close" && strings.HasPrefix(c.Alias, prefix) {
			out = append(out, c.Alias)
		}
	}
	return out
}

// IsOpen reports whether alias is open in the fake sink.
func (r *Recorder) IsOpen(alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.open[alias]
	return ok
}

