package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marketlens/marketlens/internal/core"
)

func sampleBuckets() []core.BucketStatus {
	return []core.BucketStatus{
		{
			Name:            "latest",
			TokensAvailable: 3.5,
			Capacity:        5,
			RefillRate:      0.2,
			DailyUsage:      80,
			DailyQuota:      100,
			QuotaPercentage: 80,
			IsThrottled:     true,
		},
		{
			Name:            "market",
			TokensAvailable: 10,
			Capacity:        10,
			RefillRate:      1,
			DailyUsage:      2,
			DailyQuota:      500,
			QuotaPercentage: 0.4,
		},
	}
}

func sampleBreakers() []core.BreakerStatus {
	failedAt := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	return []core.BreakerStatus{
		{Endpoint: "news/latest", State: core.BreakerOpen, FailureCount: 5, LastFailureAt: &failedAt},
		{Endpoint: "news/market", State: core.BreakerClosed},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" json ", FormatJSON, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		format, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, format)
	}
}

func TestJSONFormatterBuckets(t *testing.T) {
	f := &JSONFormatter{Indent: true}
	out, err := f.FormatBuckets(sampleBuckets())
	require.NoError(t, err)

	var decoded []core.BucketStatus
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "latest", decoded[0].Name)
	assert.True(t, decoded[0].IsThrottled)
}

func TestYAMLFormatterBreakers(t *testing.T) {
	f := &YAMLFormatter{}
	out, err := f.FormatBreakers(sampleBreakers())
	require.NoError(t, err)

	var decoded []core.BreakerStatus
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, core.BreakerOpen, decoded[0].State)
	assert.Equal(t, 5, decoded[0].FailureCount)
}

func TestTableFormatterBuckets(t *testing.T) {
	f := &TableFormatter{}
	out, err := f.FormatBuckets(sampleBuckets())
	require.NoError(t, err)

	assert.Contains(t, out, "latest")
	assert.Contains(t, out, "80/100")
	assert.Contains(t, out, "yes")
	// Footer totals
	assert.Contains(t, out, "82/600")
}

func TestTableFormatterBreakers(t *testing.T) {
	f := &TableFormatter{}
	out, err := f.FormatBreakers(sampleBreakers())
	require.NoError(t, err)

	assert.Contains(t, out, "news/latest")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "2025-06-02 09:30:05"[:16])
}

func TestNewFormatter(t *testing.T) {
	assert.IsType(t, &TableFormatter{}, NewFormatter(FormatTable))
	assert.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON))
	assert.IsType(t, &YAMLFormatter{}, NewFormatter(FormatYAML))
}
