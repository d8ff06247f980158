package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/output"
)

func sampleBucketStatus() []core.BucketStatus {
	return []core.BucketStatus{
		{
			Name:            "latest",
			TokensAvailable: 7.5,
			Capacity:        10,
			RefillRate:      0.1,
			DailyUsage:      42,
			DailyQuota:      500,
			QuotaPercentage: 8.4,
		},
		{
			Name:            "archive",
			TokensAvailable: 0,
			Capacity:        5,
			RefillRate:      0.05,
			DailyUsage:      200,
			DailyQuota:      200,
			QuotaPercentage: 100,
			IsThrottled:     true,
		},
	}
}

func TestRenderStatusTable(t *testing.T) {
	var buf bytes.Buffer
	err := renderStatus(&buf, output.FormatTable, sampleBucketStatus(), nil)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "latest")
	require.Contains(t, out, "archive")
	require.Contains(t, out, "(no circuit breakers recorded)")
}

func TestRenderStatusTableWithBreakers(t *testing.T) {
	breakers := []core.BreakerStatus{
		{Endpoint: "news/latest", State: core.BreakerOpen, FailureCount: 5},
	}

	var buf bytes.Buffer
	err := renderStatus(&buf, output.FormatTable, sampleBucketStatus(), breakers)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "news/latest")
	require.NotContains(t, out, "(no circuit breakers recorded)")
}

func TestRenderStatusJSON(t *testing.T) {
	var buf bytes.Buffer
	err := renderStatus(&buf, output.FormatJSON, sampleBucketStatus(), nil)
	require.NoError(t, err)

	// Bucket payload is the first JSON document in the stream.
	decoder := json.NewDecoder(&buf)
	var buckets []core.BucketStatus
	require.NoError(t, decoder.Decode(&buckets))
	require.Len(t, buckets, 2)
	require.Equal(t, "latest", buckets[0].Name)
	require.True(t, buckets[1].IsThrottled)
}
