package core

import "time"

// BucketUsageState is the durable portion of a bucket, persisted so that
// daily quota accounting survives process restarts.
type BucketUsageState struct {
	DailyUsage      float64
	TokensAvailable float64
	LastRefill      time.Time
	QuotaResetAt    time.Time
}

// BreakerPersistedState is the durable portion of an endpoint breaker.
type BreakerPersistedState struct {
	State         BreakerState
	FailureCount  int
	LastFailureAt *time.Time
}
