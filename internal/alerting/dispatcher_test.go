package alerting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/api3dao/wallet-watcher/internal/alerting"
	"github.com/api3dao/wallet-watcher/internal/alerting/alertingtest"
)

var fastLimits = alerting.Limits{MaxConcurrent: 10, MinSpacing: 0}

func TestDispatcher_CloseSkipsAliasesNotOpen(t *testing.T) {
	sink := alertingtest.NewRecorder("open-alias")
	d := alerting.NewDispatcher(sink, fastLimits, nil)
	ctx := context.Background()

	d.CloseBestEffort(ctx, "open-alias")
	d.CloseBestEffort(ctx, "closed-alias")
	d.Wait()

	closed := sink.Closed("")
	if len(closed) != 1 || closed[0] != "open-alias" {
		t.Errorf("Expected only open-alias closed, got %v", closed)
	}

	lists := 0
	for _, c := range sink.Calls() {
		if c.Action == "list" {
			lists++
		}
	}
	if lists != 1 {
		t.Errorf("Expected open alerts listed once, got %d", lists)
	}
}

func TestDispatcher_RaisedAliasCanBeClosed(t *testing.T) {
	sink := alertingtest.NewRecorder()
	d := alerting.NewDispatcher(sink, fastLimits, nil)
	ctx := context.Background()

	d.CloseBestEffort(ctx, "warm-cache")
	d.Wait()

	d.RaiseBlocking(ctx, alerting.Alert{Alias: "a", Message: "m", Priority: alerting.P2})
	d.CloseBestEffort(ctx, "a")
	d.Wait()

	if closed := sink.Closed("a"); len(closed) != 1 {
		t.Errorf("Expected alias closed after raise in same run, got %v", closed)
	}
	if sink.IsOpen("a") {
		t.Error("Expected alias a closed in sink")
	}
}

func TestDispatcher_SameAliasKeepsOrder(t *testing.T) {
	sink := alertingtest.NewRecorder("fresh")
	d := alerting.NewDispatcher(sink, fastLimits, nil)
	ctx := context.Background()

	d.CloseBestEffort(ctx, "fresh")
	d.RaiseBlocking(ctx, alerting.Alert{Alias: "fresh", Message: "Just topped up", Priority: alerting.P5})
	d.Wait()

	var order []string
	for _, c := range sink.Calls() {
		if c.Alias == "fresh" {
			order = append(order, c.Action)
		}
	}
	if len(order) != 2 || order[0] != "close" || order[1] != "raise" {
		t.Errorf("Expected close then raise, got %v", order)
	}
	if !sink.IsOpen("fresh") {
		t.Error("Expected fresh alert left open")
	}
}

func TestDispatcher_ListFailure(t *testing.T) {
	sink := alertingtest.NewRecorder()
	sink.ListErr = errors.New("503")
	d := alerting.NewDispatcher(sink, fastLimits, nil)
	ctx := context.Background()

	d.CloseBestEffort(ctx, "x")
	d.CloseBestEffort(ctx, "y")
	d.Wait()

	if closed := sink.Closed(""); len(closed) != 2 {
		t.Errorf("Expected closes sent without cache, got %v", closed)
	}
	if raised := sink.Raised(alerting.AliasOpenAlertsCacheFailure); len(raised) != 1 {
		t.Errorf("Expected one cache failure alert, got %d", len(raised))
	}
}

func TestDispatcher_RaiseFailureIsSwallowed(t *testing.T) {
	sink := alertingtest.NewRecorder()
	sink.RaiseErr = errors.New("boom")
	d := alerting.NewDispatcher(sink, fastLimits, nil)

	d.RaiseBlocking(context.Background(), alerting.Alert{Alias: "a", Priority: alerting.P1})
	d.Wait()

	if raised := sink.Raised("a"); len(raised) != 1 {
		t.Errorf("Expected one raise attempt, got %d", len(raised))
	}
}

// countingSink tracks how many calls are in flight at once.
type countingSink struct {
	alertingtest.Recorder
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *countingSink) Raise(ctx context.Context, alert alerting.Alert) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return nil
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	sink := &countingSink{}
	d := alerting.NewDispatcher(sink, alerting.Limits{MaxConcurrent: 2}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.RaiseBlocking(context.Background(), alerting.Alert{Alias: string(rune('a' + i)), Priority: alerting.P3})
		}(i)
	}
	wg.Wait()

	if sink.peak > 2 {
		t.Errorf("Expected at most 2 concurrent calls, got %d", sink.peak)
	}
}

func TestDispatcher_MinSpacing(t *testing.T) {
	sink := alertingtest.NewRecorder()
	d := alerting.NewDispatcher(sink, alerting.Limits{MaxConcurrent: 10, MinSpacing: 20 * time.Millisecond}, nil)

	start := time.Now()
	for i := 0; i < 4; i++ {
		d.RaiseBlocking(context.Background(), alerting.Alert{Alias: string(rune('a' + i)), Priority: alerting.P3})
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected calls spaced out, took %v", elapsed)
	}
}
