package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/marketlens/marketlens/internal/core"
)

// RateLimitError marks a provider throttle response. When RetryAfter is set
// the orchestrator honors it verbatim (capped at MaxDelay) instead of
// computing a backoff.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// markedError carries an explicit retryability override.
type markedError struct {
	err       error
	retryable bool
}

func (e *markedError) Error() string { return e.err.Error() }

func (e *markedError) Unwrap() error { return e.err }

// MarkRetryable forces the wrapped error to be treated as retryable,
// regardless of classification.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: true}
}

// MarkNonRetryable forces the wrapped error to be treated as terminal.
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &markedError{err: err, retryable: false}
}

// Classifier maps raised failures onto the error taxonomy via ordered
// message-pattern matching. Rate-limit and quota phrasing wins over generic
// status-code matches, then timeout/network, then 5xx, then 4xx.
type Classifier struct {
	// RetryablePatterns and NonRetryablePatterns are substring lists that
	// take precedence over the default retryability table. Matching is
	// case-insensitive.
	RetryablePatterns    []string
	NonRetryablePatterns []string
}

var (
	quotaPhrases = []string{
		"quota exhausted", "quota exceeded", "daily quota", "out of quota",
	}
	rateLimitPhrases = []string{
		"rate limit", "rate-limit", "too many requests", "429",
	}
	timeoutPhrases = []string{
		"timeout", "timed out", "deadline exceeded",
	}
	networkPhrases = []string{
		"connection refused", "connection reset", "no such host",
		"network is unreachable", "broken pipe", "econnrefused",
		"econnreset", "enotfound", "unexpected eof",
	}
	serverPhrases = []string{
		"500", "502", "503", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "504",
	}
	clientPhrases = []string{
		"400", "401", "403", "404", "422", "bad request", "unauthorized",
		"forbidden", "not found", "unprocessable",
	}
)

// Classify maps an error to its taxonomy entry.
func (c *Classifier) Classify(err error) core.ErrorType {
	if err == nil {
		return core.ErrorTypeUnknown
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return core.ErrorTypeRateLimit
	}

	msg := strings.ToLower(err.Error())

	if matchesAny(msg, quotaPhrases) {
		return core.ErrorTypeQuotaExhausted
	}
	if matchesAny(msg, rateLimitPhrases) {
		return core.ErrorTypeRateLimit
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return core.ErrorTypeTimeout
		}
		return core.ErrorTypeNetwork
	}

	if matchesAny(msg, timeoutPhrases) {
		return core.ErrorTypeTimeout
	}
	if matchesAny(msg, networkPhrases) {
		return core.ErrorTypeNetwork
	}
	if matchesAny(msg, serverPhrases) {
		return core.ErrorTypeServerError
	}
	if matchesAny(msg, clientPhrases) {
		return core.ErrorTypeClientError
	}

	return core.ErrorTypeUnknown
}

// IsRetryable decides whether the orchestrator may attempt the operation
// again. Precedence: explicit markers, then configured pattern lists, then
// the default per-type table.
func (c *Classifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var marked *markedError
	if errors.As(err, &marked) {
		return marked.retryable
	}

	msg := strings.ToLower(err.Error())
	if c != nil {
		if matchesAny(msg, c.NonRetryablePatterns) {
			return false
		}
		if matchesAny(msg, c.RetryablePatterns) {
			return true
		}
	}

	switch c.Classify(err) {
	case core.ErrorTypeNetwork, core.ErrorTypeTimeout,
		core.ErrorTypeServerError, core.ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

func matchesAny(msg string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
