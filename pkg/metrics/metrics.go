package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokenRefreshes counts refresh token exchanges by result (success|rejected|error).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_token_refreshes_total",
			Help: "Total number of refresh token exchanges",
		},
		[]string{"result"},
	)

	// RoleChecks counts role guard decisions by role and result (allowed|denied).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_role_checks_total",
			Help: "Total number of role guard decisions",
		},
		[]string{"role", "result"},
	)

	// OTPIssued counts one-time codes generated per reason.
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"reason"},
	)

	// OTPVerifications counts verification attempts by reason and result (success|mismatch|expired|error).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_otp_verifications_total",
			Help: "Total number of one-time code verification attempts",
		},
		[]string{"reason", "result"},
	)

	// LockCleanupRuns counts cleanup cycles of the plan lock sweeper by result (success|error).
	LockCleanupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sep490_lock_cleanup_runs_total",
			Help: "Total number of expired plan lock cleanup cycles",
		},
		[]string{"result"},
	)

	// LocksPurged counts expired plan edit locks released by the sweeper.
	LocksPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sep490_locks_purged_total",
			Help: "Total number of expired plan edit locks released",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sep490_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
