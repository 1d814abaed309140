// Package rpc wraps unreliable network calls with bounded retries.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig defines retry behavior. Timeout bounds all attempts together.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
	Timeout         time.Duration
}

// BalanceRetryConfig is used for balance queries: two retries, fixed delay.
var BalanceRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    5 * time.Second,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 1,
	Timeout:         15 * time.Second,
}

// RunRetryConfig is used for a whole watcher pass.
var RunRetryConfig = RetryConfig{
	MaxAttempts:     4,
	InitialDelay:    5 * time.Second,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 1,
	Timeout:         120 * time.Second,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}
	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}
	if strings.Contains(sLower, "insufficient funds") || strings.Contains(sLower, "invalid sender") {
		return ActionFatal
	}

	return ActionRetry
}

// Do runs op until it succeeds, a fatal error occurs, attempts run out or the
// timeout elapses. onFailure, if set, is called after every failed attempt.
func Do[T any](
	ctx context.Context,
	config RetryConfig,
	op func(ctx context.Context) (T, error),
	onFailure func(attempt int, err error),
) (T, error) {
	var zero T
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if onFailure != nil {
			onFailure(attempt+1, err)
		}

		if ClassifyError(err) == ActionFatal {
			return zero, err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("gave up after %d attempts: %w (last error: %v)", attempt+1, ctx.Err(), lastErr)
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiple := config.BackoffMultiple
	if multiple <= 0 {
		multiple = 1
	}
	delay := float64(config.InitialDelay) * math.Pow(multiple, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
