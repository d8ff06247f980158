package retry

import (
	"errors"
	"math"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// Delay computes the backoff before the next attempt. The error shapes the
// curve: rate limits honor explicit retry-after hints and otherwise back off
// gently from a larger base so we do not compound provider-side throttling;
// quota exhaustion waits a fixed long delay because quotas reset on a clock
// schedule, not by backoff; server errors start from a larger base. Jitter
// decorrelates simultaneous retriers.
func (o *Orchestrator) Delay(attempt int, errType core.ErrorType, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var rle *RateLimitError
	if errType == core.ErrorTypeRateLimit && errors.As(err, &rle) && rle.RetryAfter > 0 {
		if rle.RetryAfter > o.cfg.MaxDelay {
			return o.cfg.MaxDelay
		}
		return rle.RetryAfter
	}

	if errType == core.ErrorTypeQuotaExhausted {
		return o.cfg.QuotaExhaustedDelay
	}

	base := o.cfg.BaseDelay
	multiplier := o.cfg.BackoffMultiplier
	switch errType {
	case core.ErrorTypeRateLimit:
		base = o.cfg.RateLimitBaseDelay
		multiplier = o.cfg.RateLimitMultiplier
	case core.ErrorTypeServerError:
		base = o.cfg.ServerErrorBaseDelay
	}

	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(o.cfg.MaxDelay) {
		delay = float64(o.cfg.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}

	// U(-1,1) jitter scaled by the configured factor.
	jittered := delay + delay*o.cfg.JitterFactor*(2*o.randFloat()-1)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

func (o *Orchestrator) randFloat() float64 {
	if o.Rand != nil {
		return o.Rand()
	}
	return defaultRand()
}
