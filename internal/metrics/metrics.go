package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WalletBalance tracks the last observed balance of each wallet in wei
	WalletBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_watcher_wallet_balance_wei",
			Help: "Last observed wallet balance in wei",
		},
		[]string{"chain", "address", "type"},
	)

	// FunderBalance tracks the balance of the top-up funder per chain
	FunderBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_watcher_funder_balance_wei",
			Help: "Last observed funder balance in wei",
		},
		[]string{"chain"},
	)

	// BalanceFetchErrorsTotal counts balance queries that failed after all retries
	BalanceFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_watcher_balance_fetch_errors_total",
			Help: "Total number of balance queries that exhausted their retries",
		},
		[]string{"chain"},
	)

	// RPCRetriesTotal counts failed RPC attempts that were retried
	RPCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_watcher_rpc_failed_attempts_total",
			Help: "Total number of failed RPC attempts",
		},
		[]string{"chain", "method"},
	)

	// TopUpsTotal counts top-up outcomes: sent, dry_run, error, no_funder
	TopUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_watcher_topups_total",
			Help: "Total number of top-up attempts by result",
		},
		[]string{"chain", "result"},
	)

	// AlertCallsTotal counts calls to the alerting sink
	AlertCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_watcher_alert_calls_total",
			Help: "Total number of alerting sink calls",
		},
		[]string{"action", "result"},
	)

	// RunDuration tracks how long a full pass takes
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallet_watcher_run_duration_seconds",
			Help:    "Duration of a watcher pass in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// LastRunTimestamp is the unix time of the last finished pass
	LastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wallet_watcher_last_run_timestamp",
			Help: "Unix timestamp of the last finished pass",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage tracks the percentage of used connections in the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_watcher_db_connection_pool_usage",
			Help: "Percentage of database connection pool used",
		},
	)
)
