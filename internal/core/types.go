package core

import "time"

// TrafficClass identifies a rate-limited class of outbound traffic.
type TrafficClass string

const (
	ClassLatest  TrafficClass = "latest"
	ClassArchive TrafficClass = "archive"
	ClassCrypto  TrafficClass = "crypto"
	ClassMarket  TrafficClass = "market"
)

// ErrorType is the classifier taxonomy for failures raised by a governed call.
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeQuotaExhausted ErrorType = "quota_exhausted"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeClientError    ErrorType = "client_error"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Denial reasons surfaced to callers alongside a retry-after hint.
const (
	ReasonInsufficientTokens = "Insufficient tokens"
	ReasonDailyQuotaExceeded = "Daily quota exceeded"
	ReasonTooManyConcurrent  = "Too many concurrent requests"
)

// ConsumeResult reports the outcome of a token consumption attempt.
// Denials are returned, never raised, so callers can branch on Allowed.
type ConsumeResult struct {
	Allowed        bool          `json:"allowed"`
	TokensConsumed float64       `json:"tokens_consumed"`
	RetryAfter     time.Duration `json:"retry_after,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

// BucketStatus is a read-only snapshot of one traffic-class bucket.
type BucketStatus struct {
	Name            string  `json:"name" yaml:"name"`
	TokensAvailable float64 `json:"tokens_available" yaml:"tokens_available"`
	Capacity        float64 `json:"capacity" yaml:"capacity"`
	RefillRate      float64 `json:"refill_rate" yaml:"refill_rate"`
	DailyUsage      float64 `json:"daily_usage" yaml:"daily_usage"`
	DailyQuota      float64 `json:"daily_quota" yaml:"daily_quota"`
	QuotaPercentage float64 `json:"quota_percentage" yaml:"quota_percentage"`
	IsThrottled     bool    `json:"is_throttled" yaml:"is_throttled"`
}

// BreakerStatus is a read-only snapshot of one endpoint breaker.
type BreakerStatus struct {
	Endpoint      string       `json:"endpoint" yaml:"endpoint"`
	State         BreakerState `json:"state" yaml:"state"`
	FailureCount  int          `json:"failure_count" yaml:"failure_count"`
	LastFailureAt *time.Time   `json:"last_failure_at,omitempty" yaml:"last_failure_at,omitempty"`
}

// RetryAttempt carries the context passed to the onRetry callback
// before each backoff sleep.
type RetryAttempt struct {
	Endpoint  string        `json:"endpoint"`
	Attempt   int           `json:"attempt"`
	ErrorType ErrorType     `json:"error_type"`
	Delay     time.Duration `json:"delay"`
	Err       error         `json:"-"`
}

// RetryResult is the uniform, result-based outcome of a retried operation.
// The orchestrator never re-raises the terminal error.
type RetryResult struct {
	Success     bool          `json:"success"`
	Attempts    int           `json:"attempts"`
	TotalDelay  time.Duration `json:"total_delay"`
	CircuitOpen bool          `json:"circuit_open,omitempty"`
	ErrorType   ErrorType     `json:"error_type,omitempty"`
	Err         error         `json:"-"`
}

// RetryMetrics aggregates orchestrator activity since the last reset.
type RetryMetrics struct {
	Executions   int64 `json:"executions"`
	Successes    int64 `json:"successes"`
	Failures     int64 `json:"failures"`
	Retries      int64 `json:"retries"`
	BreakerTrips int64 `json:"breaker_trips"`
}
