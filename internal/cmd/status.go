package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/core"
	"github.com/marketlens/marketlens/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rate limit bucket and circuit breaker status",
	Long: `Show the configured token buckets with their persisted daily usage,
plus any circuit breakers recorded for upstream endpoints.

Bucket state is restored from the local state store, so the view reflects
usage accumulated by previous runs of fetch or serve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		guard := buildGuard(cfg, db, nil)
		if err := guard.Load(cmd.Context()); err != nil {
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
			outPath = filepath.Join(outDir, fmt.Sprintf("status.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return renderStatus(sink.writer, format, guard.Limiter.AllStatus(), guard.Retry.AllBreakerStatus())
	},
}

// renderStatus writes the bucket table followed by the breaker table. An
// empty breaker set prints a placeholder in table mode so the section is
// never silently absent.
func renderStatus(w io.Writer, format output.Format, buckets []core.BucketStatus, breakers []core.BreakerStatus) error {
	formatter := output.NewFormatter(format)

	rendered, err := formatter.FormatBuckets(buckets)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, rendered); err != nil {
		return err
	}

	if len(breakers) == 0 && format == output.FormatTable {
		_, err := fmt.Fprintln(w, "(no circuit breakers recorded)")
		return err
	}
	rendered, err = formatter.FormatBreakers(breakers)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func init() {
	statusCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml")
	statusCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	statusCmd.Flags().String("out-dir", "", "Write output to a directory")
	rootCmd.AddCommand(statusCmd)
}
