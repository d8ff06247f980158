package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/newsfeed"
)

func TestFetchTableLinesDenialShowsWaitHint(t *testing.T) {
	result := &newsfeed.FetchResult{
		FetchID:  "f-1",
		Class:    core.ClassLatest,
		Endpoint: "news/latest",
		Outcome: engine.Outcome{
			Consume: core.ConsumeResult{
				Allowed:    false,
				Reason:     "insufficient tokens",
				RetryAfter: 2500 * time.Millisecond,
			},
		},
	}

	lines := strings.Join(fetchTableLines(result), "\n")
	require.Contains(t, lines, "DENIED: insufficient tokens")
	require.Contains(t, lines, "retry after 2.5s")
}

func TestFetchTableLinesDenialNeverShowsZeroWait(t *testing.T) {
	result := &newsfeed.FetchResult{
		FetchID:  "f-2",
		Class:    core.ClassArchive,
		Endpoint: "news/archive",
		Outcome: engine.Outcome{
			Consume: core.ConsumeResult{
				Allowed: false,
				Reason:  "coordination window full",
			},
		},
	}

	// A denial with no retry-after still floors at a millisecond so
	// scripted callers never retry in a tight loop.
	lines := strings.Join(fetchTableLines(result), "\n")
	require.Contains(t, lines, "retry after 1ms")
	require.NotContains(t, lines, "retry after 0s")
}

func TestFetchTableLinesCircuitOpen(t *testing.T) {
	result := &newsfeed.FetchResult{
		FetchID:  "f-3",
		Class:    core.ClassCrypto,
		Endpoint: "news/crypto",
		Outcome: engine.Outcome{
			Consume: core.ConsumeResult{Allowed: true, TokensConsumed: 1},
			Retry:   &core.RetryResult{CircuitOpen: true},
		},
	}

	lines := strings.Join(fetchTableLines(result), "\n")
	require.Contains(t, lines, "CIRCUIT OPEN: news/crypto")
	require.Contains(t, lines, "breaker reset")
}

func TestFetchTableLinesSuccessListsArticles(t *testing.T) {
	result := &newsfeed.FetchResult{
		FetchID:      "f-4",
		Class:        core.ClassMarket,
		Endpoint:     "news/market",
		TotalResults: 2,
		Articles: []newsfeed.Article{
			{Source: "Reuters", Title: "Markets rally"},
			{Source: "Bloomberg", Title: "Yields slip"},
		},
		Outcome: engine.Outcome{
			Consume: core.ConsumeResult{Allowed: true, TokensConsumed: 1},
			Retry:   &core.RetryResult{Success: true, Attempts: 1},
		},
	}

	lines := strings.Join(fetchTableLines(result), "\n")
	require.Contains(t, lines, "2 article(s), 2 total upstream")
	require.Contains(t, lines, "[Reuters] Markets rally")
	require.Contains(t, lines, "[Bloomberg] Yields slip")
}
