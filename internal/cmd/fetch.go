package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/core/engine"
	"github.com/marketlens/marketlens/internal/core/newsfeed"
	errwrap "github.com/marketlens/marketlens/internal/errors"
	"github.com/marketlens/marketlens/internal/observability"
	"github.com/marketlens/marketlens/internal/output"
)

var fetchAPIKey string

var fetchCmd = &cobra.Command{
	Use:   "fetch <class> [query]",
	Short: "Fetch news through the governed rate limiter",
	Long: `Fetch news for a traffic class through the full resilience stack:
token bucket admission, retry with backoff, and the endpoint circuit breaker.

Classes:
  latest    top headlines
  archive   historical article search
  crypto    cryptocurrency coverage
  market    business and market headlines

Bucket usage and breaker state persist in the local state store, so repeated
fetches share daily quota accounting with the server.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		class := core.TrafficClass(strings.ToLower(strings.TrimSpace(args[0])))
		query := ""
		if len(args) == 2 {
			query = args[1]
		}

		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		guard := buildGuard(cfg, db, observability.CLILogger)
		if err := guard.Load(cmd.Context()); err != nil {
			observability.CLILogger.Warn("Could not restore persisted limiter state, starting fresh",
				zap.Error(err))
		}

		apiKey := strings.TrimSpace(fetchAPIKey)
		if apiKey == "" {
			apiKey = cfg.News.APIKey
		}

		client := &newsfeed.Client{
			Guard:    guard,
			HTTP:     &http.Client{Timeout: cfg.News.Timeout},
			BaseURL:  cfg.News.BaseURL,
			APIKey:   apiKey,
			Recorder: db,
		}

		result, err := client.Fetch(cmd.Context(), class, query)

		// Persist state regardless of the fetch outcome so denials and
		// breaker trips survive into the next invocation.
		if saveErr := guard.Save(cmd.Context()); saveErr != nil {
			observability.CLILogger.Warn("State persistence failed",
				zap.Error(saveErr))
		}

		if err != nil {
			return err
		}

		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}
		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("fetch.%s.%s", class, outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(sink.writer, string(payload)); err != nil {
				return err
			}
			return fetchOutcomeError(result)
		}

		if _, err := fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(fetchTableLines(result), "\n"), 0)); err != nil {
			return err
		}
		return fetchOutcomeError(result)
	},
}

// fetchTableLines builds the boxed summary for one fetch. Denials show the
// wait hint rather than the raw retry-after so callers always see a
// non-zero pause to honor.
func fetchTableLines(result *newsfeed.FetchResult) []string {
	lines := []string{fmt.Sprintf("Fetch %s (%s)", result.FetchID, result.Class), ""}
	switch {
	case !result.Outcome.Consume.Allowed:
		lines = append(lines,
			fmt.Sprintf("DENIED: %s", result.Outcome.Consume.Reason),
			fmt.Sprintf("retry after %s", engine.WaitHint(result.Outcome.Consume)))
	case result.Outcome.Retry != nil && result.Outcome.Retry.CircuitOpen:
		lines = append(lines,
			fmt.Sprintf("CIRCUIT OPEN: %s", result.Endpoint),
			"the endpoint is cooling down; try again later or run: breaker reset")
	case result.Outcome.Retry != nil && !result.Outcome.Retry.Success:
		lines = append(lines,
			fmt.Sprintf("FAILED after %d attempt(s): %s", result.Outcome.Retry.Attempts, result.Outcome.Retry.ErrorType))
	default:
		lines = append(lines, fmt.Sprintf("%d article(s), %d total upstream", len(result.Articles), result.TotalResults), "")
		for _, article := range result.Articles {
			lines = append(lines, fmt.Sprintf("[%s] %s", article.Source, article.Title))
		}
	}
	return lines
}

// fetchOutcomeError maps a completed-but-unsuccessful fetch onto a non-zero
// exit so scripts can branch on denial versus success.
func fetchOutcomeError(result *newsfeed.FetchResult) error {
	if result.Outcome.Allowed() {
		return nil
	}
	if !result.Outcome.Consume.Allowed {
		return errwrap.NewRateLimitedError(result.Outcome.Consume.Reason)
	}
	if result.Outcome.Retry != nil && result.Outcome.Retry.CircuitOpen {
		return errwrap.NewCircuitOpenError(fmt.Sprintf("circuit breaker open for %s", result.Endpoint))
	}
	return errwrap.NewInternalError(fmt.Sprintf("fetch failed for %s", result.Endpoint))
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAPIKey, "api-key", "", "News API key (overrides config and MARKETLENS_NEWS_API_KEY)")
	fetchCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	fetchCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	fetchCmd.Flags().String("out-dir", "", "Write output to a directory")
	rootCmd.AddCommand(fetchCmd)
}
