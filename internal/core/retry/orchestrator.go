// Package retry drives repeated invocation of caller-supplied operations
// against the news API, with per-error-class exponential backoff, jitter,
// and per-endpoint circuit breakers. Denied and failed outcomes are
// returned as values; the orchestrator never re-raises.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// ErrCircuitOpen is the terminal error carried by results that were
// fast-failed without invoking the operation.
var ErrCircuitOpen = errors.New("circuit breaker open")

// NoJitter is the JitterFactor value that disables jitter. Any negative
// factor clamps to zero spread.
const NoJitter = -1.0

// Operation is the caller-supplied call to be governed. The orchestrator
// never inspects its payload, only its outcome; result data stays with the
// caller via closure.
type Operation func(ctx context.Context) error

// Config tunes attempt bounds, the backoff curve, and breaker behavior.
type Config struct {
	MaxAttempts          int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	BackoffMultiplier    float64
	// JitterFactor spreads each delay across [d*(1-j), d*(1+j)]. Zero
	// falls back to the default like every other knob; use NoJitter to
	// disable jitter entirely.
	JitterFactor float64
	RateLimitBaseDelay   time.Duration
	RateLimitMultiplier  float64
	ServerErrorBaseDelay time.Duration
	QuotaExhaustedDelay  time.Duration
	Breaker              BreakerConfig
}

// DefaultConfig returns the conservative defaults used when configuration
// leaves a knob unset.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          3,
		BaseDelay:            500 * time.Millisecond,
		MaxDelay:             30 * time.Second,
		BackoffMultiplier:    2.0,
		JitterFactor:         0.2,
		RateLimitBaseDelay:   time.Second,
		RateLimitMultiplier:  1.5,
		ServerErrorBaseDelay: 5 * time.Second,
		QuotaExhaustedDelay:  time.Hour,
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Cooldown:         time.Minute,
		},
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaults.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaults.MaxDelay
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
	switch {
	case c.JitterFactor == 0:
		c.JitterFactor = defaults.JitterFactor
	case c.JitterFactor < 0:
		c.JitterFactor = 0
	}
	if c.RateLimitBaseDelay < time.Second {
		c.RateLimitBaseDelay = defaults.RateLimitBaseDelay
	}
	if c.RateLimitMultiplier <= 0 {
		c.RateLimitMultiplier = defaults.RateLimitMultiplier
	}
	if c.ServerErrorBaseDelay < 5*time.Second {
		c.ServerErrorBaseDelay = defaults.ServerErrorBaseDelay
	}
	if c.QuotaExhaustedDelay <= 0 {
		c.QuotaExhaustedDelay = defaults.QuotaExhaustedDelay
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = defaults.Breaker.FailureThreshold
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = defaults.Breaker.Cooldown
	}
	return c
}

// ExecOptions carries per-call overrides for Execute.
type ExecOptions struct {
	// MaxAttempts overrides the configured bound when positive.
	MaxAttempts int
	// OnRetry is invoked with full context before each backoff sleep.
	// It is fire-and-forget: panics are swallowed and its absence changes
	// nothing.
	OnRetry func(core.RetryAttempt)
}

// Orchestrator owns the breaker table and retry bookkeeping. Like the
// limiter it is an explicit struct constructed once and injected; the
// Clock, Sleep, and Rand hooks exist so tests never touch real time.
type Orchestrator struct {
	// Classifier maps failures to the taxonomy. A zero-value classifier is
	// used when nil.
	Classifier *Classifier
	// Clock supplies the current time for breaker cooldowns.
	Clock func() time.Time
	// Sleep waits between attempts. The default honors context
	// cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand yields uniform values in [0,1) for jitter.
	Rand func() float64
	// OnFailure is an optional secondary error handler invoked
	// fire-and-forget on terminal failures.
	OnFailure func(endpoint string, err error)

	cfg      Config
	mu       sync.Mutex
	breakers map[string]*breaker
	metrics  core.RetryMetrics
}

// NewOrchestrator builds an orchestrator with the given configuration,
// filling unset knobs from DefaultConfig.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*breaker),
	}
}

// Config returns the effective (defaulted) configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Execute runs the operation with bounded retries for the given endpoint.
//
// The breaker is consulted before the first attempt: an open circuit
// fast-fails with zero attempts and no operation invocation. Failures are
// classified per attempt; non-retryable errors and exhausted attempts
// produce a failure result carrying the last error, attempt count, and
// accumulated delay.
func (o *Orchestrator) Execute(ctx context.Context, endpoint string, op Operation, opts *ExecOptions) core.RetryResult {
	if ctx == nil {
		ctx = context.Background()
	}

	o.mu.Lock()
	o.metrics.Executions++
	if o.cfg.Breaker.Enabled {
		b := o.breakerFor(endpoint)
		if !o.canExecute(b, o.now()) {
			o.metrics.BreakerTrips++
			o.mu.Unlock()
			return core.RetryResult{
				CircuitOpen: true,
				ErrorType:   core.ErrorTypeUnknown,
				Err:         ErrCircuitOpen,
			}
		}
	}
	o.mu.Unlock()

	maxAttempts := o.cfg.MaxAttempts
	if opts != nil && opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}

	var totalDelay time.Duration
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			o.finishSuccess(endpoint)
			return core.RetryResult{
				Success:    true,
				Attempts:   attempt,
				TotalDelay: totalDelay,
			}
		}

		errType := o.classifier().Classify(err)
		if !o.classifier().IsRetryable(err) || attempt >= maxAttempts {
			o.finishFailure(endpoint, err)
			return core.RetryResult{
				Attempts:   attempt,
				TotalDelay: totalDelay,
				ErrorType:  errType,
				Err:        err,
			}
		}

		delay := o.Delay(attempt, errType, err)
		totalDelay += delay

		o.mu.Lock()
		o.metrics.Retries++
		o.mu.Unlock()

		if opts != nil && opts.OnRetry != nil {
			safeInvoke(func() {
				opts.OnRetry(core.RetryAttempt{
					Endpoint:  endpoint,
					Attempt:   attempt,
					ErrorType: errType,
					Delay:     delay,
					Err:       err,
				})
			})
		}

		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			o.finishFailure(endpoint, err)
			return core.RetryResult{
				Attempts:   attempt,
				TotalDelay: totalDelay,
				ErrorType:  errType,
				Err:        sleepErr,
			}
		}
	}
}

// Metrics returns a snapshot of orchestrator activity.
func (o *Orchestrator) Metrics() core.RetryMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// ResetMetrics zeroes the counters. Breaker state is unaffected.
func (o *Orchestrator) ResetMetrics() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics = core.RetryMetrics{}
}

func (o *Orchestrator) finishSuccess(endpoint string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.metrics.Successes++
	if o.cfg.Breaker.Enabled {
		o.recordSuccess(o.breakerFor(endpoint))
	}
}

func (o *Orchestrator) finishFailure(endpoint string, err error) {
	o.mu.Lock()
	o.metrics.Failures++
	if o.cfg.Breaker.Enabled {
		o.recordFailure(o.breakerFor(endpoint), o.now())
	}
	handler := o.OnFailure
	o.mu.Unlock()

	if handler != nil {
		safeInvoke(func() { handler(endpoint, err) })
	}
}

func (o *Orchestrator) classifier() *Classifier {
	if o.Classifier != nil {
		return o.Classifier
	}
	return &Classifier{}
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// safeInvoke shields control flow from misbehaving collaborator callbacks.
func safeInvoke(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func defaultRand() float64 {
	return rand.Float64() // #nosec G404 -- jitter does not need crypto randomness
}
