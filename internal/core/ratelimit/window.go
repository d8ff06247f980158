package ratelimit

import "time"

// WindowConfig tunes the coordination window: a short rolling horizon over
// which admitted consumption attempts are capped per bucket, independent of
// token availability. It exists to blunt check-then-act bursts where many
// callers pass a stale token check before any of them decrements the bucket.
//
// The admission ceiling is a policy knob, not a derived value; the defaults
// are deliberately conservative.
type WindowConfig struct {
	Enabled   bool
	MaxAdmits int
	Span      time.Duration
}

// DefaultWindowSpan is the rolling horizon used when none is configured.
const DefaultWindowSpan = time.Second

// DefaultWindowAdmits is the per-bucket admission ceiling used when none is
// configured.
const DefaultWindowAdmits = 8

func (w WindowConfig) span() time.Duration {
	if w.Span > 0 {
		return w.Span
	}
	return DefaultWindowSpan
}

func (w WindowConfig) maxAdmits() int {
	if w.MaxAdmits > 0 {
		return w.MaxAdmits
	}
	return DefaultWindowAdmits
}

// windowDenies prunes expired admits and reports whether the window is full.
// When full, the retry-after hint is the time until the oldest admit leaves
// the window. Caller holds the limiter mutex.
func (l *Limiter) windowDenies(b *bucket, now time.Time) (bool, time.Duration) {
	if !l.Window.Enabled {
		return false, 0
	}

	span := l.Window.span()
	cutoff := now.Add(-span)
	kept := b.admits[:0]
	for _, at := range b.admits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.admits = kept

	if len(b.admits) < l.Window.maxAdmits() {
		return false, 0
	}

	retryAfter := b.admits[0].Add(span).Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return true, retryAfter
}

// recordAdmit appends the admission timestamp when the window is enabled.
// Caller holds the limiter mutex.
func (l *Limiter) recordAdmit(b *bucket, now time.Time) {
	if !l.Window.Enabled {
		return
	}
	b.admits = append(b.admits, now)
}
