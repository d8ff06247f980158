package newsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/ratelimit"
	"github.com/marketlens/marketlens/internal/core/retry"
)

func newTestGuard(buckets map[string]ratelimit.BucketConfig) *engine.Guard {
	cfg := retry.DefaultConfig()
	cfg.Breaker.Enabled = true

	orch := retry.NewOrchestrator(cfg)
	orch.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return &engine.Guard{
		Limiter: ratelimit.New(buckets),
		Retry:   orch,
	}
}

func defaultBuckets() map[string]ratelimit.BucketConfig {
	return map[string]ratelimit.BucketConfig{
		"latest":  {Capacity: 5, RefillRate: 1, DailyQuota: 100},
		"archive": {Capacity: 3, RefillRate: 1, DailyQuota: 50},
		"crypto":  {Capacity: 5, RefillRate: 1, DailyQuota: 100},
		"market":  {Capacity: 10, RefillRate: 1, DailyQuota: 500},
	}
}

const samplePayload = `{
	"status": "ok",
	"totalResults": 2,
	"articles": [
		{"source": {"name": "Reuters"}, "title": "Markets rally", "url": "https://example.com/a", "publishedAt": "2025-06-02T08:00:00Z"},
		{"source": {"name": "Bloomberg"}, "title": "Crypto update", "url": "https://example.com/b", "publishedAt": "2025-06-02T08:30:00Z"}
	]
}`

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "nvidia", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := &Client{
		Guard:   newTestGuard(defaultBuckets()),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}

	result, err := client.Fetch(context.Background(), core.ClassLatest, "nvidia")
	require.NoError(t, err)
	require.True(t, result.Outcome.Allowed())

	assert.Equal(t, core.ClassLatest, result.Class)
	assert.Equal(t, "news/latest", result.Endpoint)
	assert.Equal(t, 2, result.TotalResults)
	require.Len(t, result.Articles, 2)
	assert.Equal(t, "Reuters", result.Articles[0].Source)
	assert.NotEmpty(t, result.FetchID)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	client := &Client{
		Guard:   newTestGuard(defaultBuckets()),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
	}

	result, err := client.Fetch(context.Background(), core.ClassMarket, "")
	require.NoError(t, err)
	require.NotNil(t, result.Outcome.Retry)

	assert.True(t, result.Outcome.Retry.Success)
	assert.Equal(t, 3, result.Outcome.Retry.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRateLimitedUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := &Client{
		Guard:   newTestGuard(defaultBuckets()),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
	}

	result, err := client.Fetch(context.Background(), core.ClassCrypto, "")
	require.NoError(t, err)
	require.NotNil(t, result.Outcome.Retry)

	assert.False(t, result.Outcome.Retry.Success)
	assert.Equal(t, core.ErrorTypeRateLimit, result.Outcome.Retry.ErrorType)
	// Retryable, so all attempts were consumed.
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &Client{
		Guard:   newTestGuard(defaultBuckets()),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
	}

	result, err := client.Fetch(context.Background(), core.ClassLatest, "")
	require.NoError(t, err)
	require.NotNil(t, result.Outcome.Retry)

	assert.False(t, result.Outcome.Retry.Success)
	assert.Equal(t, 1, result.Outcome.Retry.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchQuotaExhaustedUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"error","code":"quotaExceeded","message":"Daily quota exceeded"}`))
	}))
	defer srv.Close()

	client := &Client{
		Guard:   newTestGuard(defaultBuckets()),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
	}

	result, err := client.Fetch(context.Background(), core.ClassArchive, "")
	require.NoError(t, err)
	require.NotNil(t, result.Outcome.Retry)

	assert.False(t, result.Outcome.Retry.Success)
	assert.Equal(t, core.ErrorTypeQuotaExhausted, result.Outcome.Retry.ErrorType)
}

func TestFetchDeniedByBucket(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	buckets := defaultBuckets()
	buckets["latest"] = ratelimit.BucketConfig{Capacity: 1, RefillRate: 0.001, DailyQuota: 100}

	client := &Client{
		Guard:   newTestGuard(buckets),
		HTTP:    srv.Client(),
		BaseURL: srv.URL,
	}

	first, err := client.Fetch(context.Background(), core.ClassLatest, "")
	require.NoError(t, err)
	require.True(t, first.Outcome.Allowed())

	second, err := client.Fetch(context.Background(), core.ClassLatest, "")
	require.NoError(t, err)

	assert.False(t, second.Outcome.Consume.Allowed)
	assert.Equal(t, core.ReasonInsufficientTokens, second.Outcome.Consume.Reason)
	assert.Nil(t, second.Outcome.Retry)
	assert.Positive(t, second.Outcome.Consume.RetryAfter)
	// Upstream was only reached once.
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchUnknownClass(t *testing.T) {
	client := &Client{Guard: newTestGuard(defaultBuckets())}

	_, err := client.Fetch(context.Background(), core.TrafficClass("bogus"), "")
	require.Error(t, err)
}

type recordingRecorder struct {
	endpoint string
	bucket   string
	result   core.RetryResult
	calls    int
}

func (r *recordingRecorder) RecordFetch(_ context.Context, endpoint, bucket string, result core.RetryResult) error {
	r.endpoint = endpoint
	r.bucket = bucket
	r.result = result
	r.calls++
	return nil
}

func TestFetchRecordsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer srv.Close()

	recorder := &recordingRecorder{}
	client := &Client{
		Guard:    newTestGuard(defaultBuckets()),
		HTTP:     srv.Client(),
		BaseURL:  srv.URL,
		Recorder: recorder,
	}

	_, err := client.Fetch(context.Background(), core.ClassMarket, "")
	require.NoError(t, err)

	assert.Equal(t, 1, recorder.calls)
	assert.Equal(t, "news/market", recorder.endpoint)
	assert.Equal(t, "market", recorder.bucket)
	assert.True(t, recorder.result.Success)
}
