package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/core/store"
	"github.com/marketlens/marketlens/internal/output"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Manage persisted bucket usage state",
}

var (
	usageListAll    bool
	usageListBucket string
	usageListPrefix string
)

var usageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted bucket usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.BucketUsageQuery{
			All:    usageListAll,
			Bucket: strings.TrimSpace(usageListBucket),
			Prefix: strings.TrimSpace(usageListPrefix),
		}
		if !query.All && query.Bucket == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListBucketUsageEntries(cmd.Context(), query)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("usage.list.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		lines := []string{"Bucket Usage", ""}
		if len(entries) == 0 {
			lines = append(lines, "(no stored bucket usage)")
			_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
			return nil
		}

		for _, entry := range entries {
			reset := "-"
			if !entry.State.QuotaResetAt.IsZero() {
				reset = entry.State.QuotaResetAt.UTC().Format(time.RFC3339)
			}
			lines = append(lines, fmt.Sprintf("%s: used=%.1f tokens=%.2f resets=%s",
				entry.Bucket, entry.State.DailyUsage, entry.State.TokensAvailable, reset))
		}

		_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

var (
	usageResetAll    bool
	usageResetBucket string
	usageResetPrefix string
	usageResetYes    bool
	usageResetDryRun bool
)

var usageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted bucket usage",
	Long: `Delete persisted bucket usage rows so daily accounting starts fresh.

This does not change the configured quotas, only the accumulated usage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.BucketUsageQuery{
			All:    usageResetAll,
			Bucket: strings.TrimSpace(usageResetBucket),
			Prefix: strings.TrimSpace(usageResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !usageResetYes && !usageResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountBucketUsage(cmd.Context(), query)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("usage.reset.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if usageResetDryRun {
			return writeResetResult(format, sink.writer, "bucket usage", matched, 0, true)
		}

		deleted, err := db.ResetBucketUsage(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeResetResult(format, sink.writer, "bucket usage", matched, deleted, false)
	},
}

func writeResetResult(format output.Format, w io.Writer, subject string, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d %s entr(ies)\n", matched, subject)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d %s entr(ies)\n", deleted, matched, subject)
	return err
}

func init() {
	usageListCmd.Flags().StringVar(&usageListBucket, "bucket", "", "List a single bucket (exact match)")
	usageListCmd.Flags().StringVar(&usageListPrefix, "prefix", "", "List buckets with matching prefix")
	usageListCmd.Flags().BoolVar(&usageListAll, "all", false, "List all buckets")
	usageListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	usageListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	usageListCmd.Flags().String("out-dir", "", "Write output to a directory")

	usageResetCmd.Flags().BoolVar(&usageResetAll, "all", false, "Reset all buckets")
	usageResetCmd.Flags().StringVar(&usageResetBucket, "bucket", "", "Reset a single bucket (exact match)")
	usageResetCmd.Flags().StringVar(&usageResetPrefix, "prefix", "", "Reset buckets with matching prefix")
	usageResetCmd.Flags().BoolVar(&usageResetYes, "yes", false, "Confirm destructive reset")
	usageResetCmd.Flags().BoolVar(&usageResetDryRun, "dry-run", false, "Show what would be deleted")
	usageResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	usageResetCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	usageResetCmd.Flags().String("out-dir", "", "Write output to a directory")

	usageCmd.AddCommand(usageListCmd)
	usageCmd.AddCommand(usageResetCmd)
	rootCmd.AddCommand(usageCmd)
}
