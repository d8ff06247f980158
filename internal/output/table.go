package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/marketlens/marketlens/internal/core"
)

// TableFormatter renders status as an ASCII table.
type TableFormatter struct{}

// FormatBuckets renders bucket status as a table.
func (f *TableFormatter) FormatBuckets(statuses []core.BucketStatus) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Bucket", "Tokens", "Capacity", "Refill/s", "Daily Usage", "Quota %", "Throttled"})

	var totalUsage, totalQuota float64
	for _, s := range statuses {
		t.AppendRow(table.Row{
			s.Name,
			fmt.Sprintf("%.1f", s.TokensAvailable),
			fmt.Sprintf("%.0f", s.Capacity),
			fmt.Sprintf("%.2f", s.RefillRate),
			fmt.Sprintf("%.0f/%.0f", s.DailyUsage, s.DailyQuota),
			fmt.Sprintf("%.1f%%", s.QuotaPercentage),
			throttleLabel(s.IsThrottled),
		})
		totalUsage += s.DailyUsage
		totalQuota += s.DailyQuota
	}

	if len(statuses) > 0 {
		t.AppendFooter(table.Row{
			"", "", "", "",
			fmt.Sprintf("%.0f/%.0f", totalUsage, totalQuota),
			"", "",
		})
	}

	return t.Render(), nil
}

// FormatBreakers renders circuit breaker status as a table.
func (f *TableFormatter) FormatBreakers(statuses []core.BreakerStatus) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "State", "Failures", "Last Failure"})

	for _, s := range statuses {
		lastFailure := "-"
		if s.LastFailureAt != nil {
			lastFailure = s.LastFailureAt.UTC().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			s.Endpoint,
			string(s.State),
			s.FailureCount,
			lastFailure,
		})
	}

	return t.Render(), nil
}

func throttleLabel(throttled bool) string {
	if throttled {
		return "yes"
	}
	return "no"
}
