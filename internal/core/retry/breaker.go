package retry

import (
	"sort"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// BreakerConfig tunes the per-endpoint circuit breakers.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	Cooldown         time.Duration
}

// breaker is the failure-counting state machine for one endpoint. Breakers
// are created on first reference and retained for the process lifetime.
// All access goes through the Orchestrator mutex.
type breaker struct {
	state       core.BreakerState
	failures    int
	lastFailure time.Time
}

func (o *Orchestrator) breakerFor(endpoint string) *breaker {
	b, ok := o.breakers[endpoint]
	if !ok {
		b = &breaker{state: core.BreakerClosed}
		o.breakers[endpoint] = b
	}
	return b
}

// canExecute reports whether a call to the endpoint may proceed, advancing
// open breakers to half-open once the cooldown has elapsed. Caller holds the
// orchestrator mutex.
func (o *Orchestrator) canExecute(b *breaker, now time.Time) bool {
	switch b.state {
	case core.BreakerOpen:
		if now.Sub(b.lastFailure) >= o.cfg.Breaker.Cooldown {
			b.state = core.BreakerHalfOpen
			return true
		}
		return false
	default:
		// closed and half-open both admit; half-open admits the single
		// probe whose outcome decides the next transition.
		return true
	}
}

// recordSuccess closes the breaker and clears the failure count.
func (o *Orchestrator) recordSuccess(b *breaker) {
	b.failures = 0
	b.state = core.BreakerClosed
}

// recordFailure counts a failure, opening the breaker at the threshold and
// re-opening (with a fresh cooldown clock) from half-open.
func (o *Orchestrator) recordFailure(b *breaker, now time.Time) {
	b.failures++
	b.lastFailure = now

	switch b.state {
	case core.BreakerHalfOpen:
		b.state = core.BreakerOpen
	case core.BreakerClosed:
		if b.failures >= o.cfg.Breaker.FailureThreshold {
			b.state = core.BreakerOpen
		}
	}
}

// BreakerStatus returns a snapshot for one endpoint. The second return is
// false when no breaker has been created for the endpoint yet.
func (o *Orchestrator) BreakerStatus(endpoint string) (core.BreakerStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, ok := o.breakers[endpoint]
	if !ok {
		return core.BreakerStatus{}, false
	}
	return o.breakerStatus(endpoint, b), true
}

// AllBreakerStatus returns snapshots for every known endpoint, sorted by
// endpoint name.
func (o *Orchestrator) AllBreakerStatus() []core.BreakerStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	endpoints := make([]string, 0, len(o.breakers))
	for endpoint := range o.breakers {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)

	statuses := make([]core.BreakerStatus, 0, len(endpoints))
	for _, endpoint := range endpoints {
		statuses = append(statuses, o.breakerStatus(endpoint, o.breakers[endpoint]))
	}
	return statuses
}

func (o *Orchestrator) breakerStatus(endpoint string, b *breaker) core.BreakerStatus {
	status := core.BreakerStatus{
		Endpoint:     endpoint,
		State:        b.state,
		FailureCount: b.failures,
	}
	if !b.lastFailure.IsZero() {
		at := b.lastFailure
		status.LastFailureAt = &at
	}
	return status
}

// ResetBreaker forces the endpoint breaker back to closed. Used for
// operational recovery and tests.
func (o *Orchestrator) ResetBreaker(endpoint string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if b, ok := o.breakers[endpoint]; ok {
		b.state = core.BreakerClosed
		b.failures = 0
		b.lastFailure = time.Time{}
	}
}

// ResetAllBreakers forces every known breaker back to closed.
func (o *Orchestrator) ResetAllBreakers() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, b := range o.breakers {
		b.state = core.BreakerClosed
		b.failures = 0
		b.lastFailure = time.Time{}
	}
}

// ExportBreakers snapshots durable breaker state for persistence.
func (o *Orchestrator) ExportBreakers() map[string]core.BreakerPersistedState {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]core.BreakerPersistedState, len(o.breakers))
	for endpoint, b := range o.breakers {
		state := core.BreakerPersistedState{
			State:        b.state,
			FailureCount: b.failures,
		}
		if !b.lastFailure.IsZero() {
			at := b.lastFailure
			state.LastFailureAt = &at
		}
		out[endpoint] = state
	}
	return out
}

// RestoreBreakers applies previously persisted breaker state.
func (o *Orchestrator) RestoreBreakers(states map[string]core.BreakerPersistedState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for endpoint, state := range states {
		b := o.breakerFor(endpoint)
		if state.State != "" {
			b.state = state.State
		}
		b.failures = state.FailureCount
		if state.LastFailureAt != nil {
			b.lastFailure = *state.LastFailureAt
		}
	}
}
