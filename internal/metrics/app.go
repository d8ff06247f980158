package metrics

import (
	"time"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Rate limiter metrics
	RateLimitDecisionsTotal = "app_rate_limit_decisions_total"
	BucketQuotaPercentage   = "app_bucket_quota_percentage"

	// Retry orchestrator metrics
	RetryOutcomesTotal = "app_retry_outcomes_total"
	RetryAttempts      = "app_retry_attempts"
	BreakerTripsTotal  = "app_breaker_trips_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordRateLimitDecision records an admission decision for a bucket.
func RecordRateLimitDecision(bucket string, allowed bool, reason string) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "allowed"
	if !allowed {
		status = "denied"
	}
	labels := map[string]string{
		"bucket": bucket,
		"status": status,
	}
	if reason != "" {
		labels["reason"] = reason
	}
	_ = observability.TelemetrySystem.Counter(RateLimitDecisionsTotal, 1, labels)
}

// RecordBucketQuota records the current quota consumption for a bucket.
func RecordBucketQuota(status core.BucketStatus) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Gauge(
		BucketQuotaPercentage,
		status.QuotaPercentage,
		map[string]string{"bucket": status.Name},
	)
}

// RecordRetryOutcome records the terminal outcome of a governed call.
func RecordRetryOutcome(endpoint string, result core.RetryResult) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "failure"
	switch {
	case result.Success:
		status = "success"
	case result.CircuitOpen:
		status = "circuit_open"
	}

	labels := map[string]string{
		"endpoint": endpoint,
		"status":   status,
	}
	if result.ErrorType != "" && !result.Success {
		labels["error_type"] = string(result.ErrorType)
	}

	_ = observability.TelemetrySystem.Counter(RetryOutcomesTotal, 1, labels)
	_ = observability.TelemetrySystem.Gauge(
		RetryAttempts,
		float64(result.Attempts),
		map[string]string{"endpoint": endpoint},
	)
	if result.CircuitOpen {
		_ = observability.TelemetrySystem.Counter(
			BreakerTripsTotal,
			1,
			map[string]string{"endpoint": endpoint},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
