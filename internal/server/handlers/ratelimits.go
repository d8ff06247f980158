package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/ratelimit"
	apperrors "github.com/marketlens/marketlens/internal/errors"
)

// RateLimitHandlers serves bucket and circuit breaker status from the guard.
type RateLimitHandlers struct {
	guard *engine.Guard
}

// NewRateLimitHandlers creates handlers backed by the provided guard.
func NewRateLimitHandlers(guard *engine.Guard) *RateLimitHandlers {
	return &RateLimitHandlers{guard: guard}
}

// BucketListResponse is the /rate-limits payload.
type BucketListResponse struct {
	Buckets   []core.BucketStatus `json:"buckets"`
	Timestamp time.Time           `json:"timestamp"`
}

// BreakerListResponse is the /circuit-breakers payload.
type BreakerListResponse struct {
	Breakers  []core.BreakerStatus `json:"breakers"`
	Timestamp time.Time            `json:"timestamp"`
}

// ListBuckets returns status for every configured bucket.
func (h *RateLimitHandlers) ListBuckets(w http.ResponseWriter, r *http.Request) {
	response := BucketListResponse{
		Buckets:   h.guard.Limiter.AllStatus(),
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// BucketStatus returns status for one bucket by name.
func (h *RateLimitHandlers) BucketStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	status, err := h.guard.Limiter.Status(name)
	if err != nil {
		if errors.Is(err, ratelimit.ErrUnknownBucket) {
			respondWithError(w, r, apperrors.NewNotFoundError("Unknown rate limit bucket: "+name))
			return
		}
		respondWithError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

// ListBreakers returns status for every endpoint breaker seen so far.
func (h *RateLimitHandlers) ListBreakers(w http.ResponseWriter, r *http.Request) {
	response := BreakerListResponse{
		Breakers:  h.guard.Retry.AllBreakerStatus(),
		Timestamp: time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
