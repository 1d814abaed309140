// Package opsgenie is an alerting.Sink backed by the OpsGenie REST API.
package opsgenie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/api3dao/wallet-watcher/internal/alerting"
)

const (
	defaultBaseURL = "https://api.opsgenie.com"
	defaultTimeout = 10 * time.Second
	maxRetries     = 2
	pageSize       = 100
	maxPages       = 20
)

// Config represents OpsGenie client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outbound requests; zero means 10.
	RequestsPerSecond float64
}

// Client talks to the OpsGenie alert and heartbeat APIs.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	log            *slog.Logger
}

var _ alerting.Sink = (*Client)(nil)

// NewClient creates a new OpsGenie client.
func NewClient(config Config, log *slog.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 10
	}
	if log == nil {
		log = slog.Default()
	}

	cbSettings := gobreaker.Settings{
		Name:        "OpsGenieAPI",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("OpsGenie circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		log:            log,
	}
}

type createAlertRequest struct {
	Message     string `json:"message"`
	Alias       string `json:"alias,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

type closeAlertRequest struct {
	Source string `json:"source,omitempty"`
	Note   string `json:"note,omitempty"`
}

type listAlertsResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Alias  string `json:"alias"`
		Status string `json:"status"`
	} `json:"data"`
}

// Raise creates an alert. OpsGenie deduplicates open alerts by alias.
func (c *Client) Raise(ctx context.Context, alert alerting.Alert) error {
	body := createAlertRequest{
		Message:     truncate(alert.Message, 130),
		Alias:       truncate(alert.Alias, 512),
		Description: truncate(alert.Description, 15000),
		Priority:    string(alert.Priority),
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v2/alerts", body, nil); err != nil {
		return fmt.Errorf("create alert failed: %w", err)
	}
	return nil
}

// Close closes the open alert identified by alias.
func (c *Client) Close(ctx context.Context, alias string) error {
	endpoint := fmt.Sprintf("/v2/alerts/%s/close?identifierType=alias", url.PathEscape(alias))
	body := closeAlertRequest{Source: "wallet-watcher", Note: "Condition resolved"}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("close alert failed: %w", err)
	}
	return nil
}

// ListOpen pages through all open alerts.
func (c *Client) ListOpen(ctx context.Context) ([]alerting.OpenAlert, error) {
	var out []alerting.OpenAlert
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("query", "status: open")
		q.Set("limit", fmt.Sprint(pageSize))
		q.Set("offset", fmt.Sprint(page*pageSize))

		var resp listAlertsResponse
		if err := c.doRequest(ctx, http.MethodGet, "/v2/alerts?"+q.Encode(), nil, &resp); err != nil {
			return nil, fmt.Errorf("list alerts failed: %w", err)
		}
		for _, a := range resp.Data {
			out = append(out, alerting.OpenAlert{ID: a.ID, Alias: a.Alias})
		}
		if len(resp.Data) < pageSize {
			return out, nil
		}
	}
	c.log.Warn("Open alert listing truncated", "pages", maxPages)
	return out, nil
}

// Heartbeat pings the named heartbeat.
func (c *Client) Heartbeat(ctx context.Context, name string) error {
	endpoint := fmt.Sprintf("/v2/heartbeats/%s/ping", url.PathEscape(name))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, nil); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("opsgenie: status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, response any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, method, endpoint, body, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, body, response any) error {
	fullURL := c.config.BaseURL + endpoint

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "GenieKey "+c.config.APIKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read body: %w", err)
			continue
		}

		// Retry on 5xx and throttling
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
				apiErr.Message = string(respBody)
			}
			return apiErr
		}

		if response != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, response); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
