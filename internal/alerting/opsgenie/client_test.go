package opsgenie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/api3dao/wallet-watcher/internal/alerting"
)

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, RequestsPerSecond: 1000}, nil)
}

func TestClient_Raise(t *testing.T) {
	var got createAlertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/alerts" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "GenieKey test-key" {
			t.Errorf("Expected GenieKey auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"result":"Request will be processed","requestId":"r1"}`)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Raise(context.Background(), alerting.Alert{
		Alias:       "low-balance-0xabc",
		Message:     "Low balance alert for address 0x1 on chain localhost",
		Description: "Current balance: 1\nThreshold: 2",
		Priority:    alerting.P2,
	})
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if got.Alias != "low-balance-0xabc" || got.Priority != "P2" || got.Description != "Current balance: 1\nThreshold: 2" {
		t.Errorf("Unexpected request body: %+v", got)
	}
}

func TestClient_CloseByAlias(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/alerts/no-sponsor-0xabc/close" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("identifierType") != "alias" {
			t.Errorf("Expected identifierType=alias, got %q", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Close(context.Background(), "no-sponsor-0xabc"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestClient_ListOpenPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "status: open" {
			t.Errorf("Unexpected query %q", r.URL.Query().Get("query"))
		}
		var resp listAlertsResponse
		count := pageSize
		if r.URL.Query().Get("offset") != "0" {
			count = 3
		}
		for i := 0; i < count; i++ {
			resp.Data = append(resp.Data, struct {
				ID     string `json:"id"`
				Alias  string `json:"alias"`
				Status string `json:"status"`
			}{ID: fmt.Sprint(i), Alias: fmt.Sprintf("alias-%s-%d", r.URL.Query().Get("offset"), i), Status: "open"})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	alerts, err := newTestClient(server.URL).ListOpen(context.Background())
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(alerts) != pageSize+3 {
		t.Errorf("Expected %d alerts, got %d", pageSize+3, len(alerts))
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).Heartbeat(context.Background(), "wallet-watcher"); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Key format is not valid!"}`)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Raise(context.Background(), alerting.Alert{Alias: "a", Message: "m"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected API error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Key format is not valid!" {
		t.Errorf("Unexpected error: %v", apiErr)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		n      int
		expect string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		// "é" is two bytes; cutting inside it backs off to before it.
		{"abé", 3, "ab"},
		{"abé", 4, "abé"},
		{"€uro", 2, ""},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.expect {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.expect)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
