package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/core/store"
	"github.com/marketlens/marketlens/internal/output"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Manage persisted circuit breaker state",
}

var (
	breakerListAll      bool
	breakerListEndpoint string
	breakerListPrefix   string
)

var breakerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted circuit breakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.BreakerQuery{
			All:      breakerListAll,
			Endpoint: strings.TrimSpace(breakerListEndpoint),
			Prefix:   strings.TrimSpace(breakerListPrefix),
		}
		if !query.All && query.Endpoint == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListBreakerEntries(cmd.Context(), query)
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
			outPath = filepath.Join(outDir, fmt.Sprintf("breaker.list.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatBreakers(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var (
	breakerResetAll      bool
	breakerResetEndpoint string
	breakerResetPrefix   string
	breakerResetYes      bool
	breakerResetDryRun   bool
)

var breakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted circuit breakers",
	Long: `Delete persisted circuit breaker rows so tripped endpoints are retried
immediately on the next fetch instead of waiting out the cooldown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.BreakerQuery{
			All:      breakerResetAll,
			Endpoint: strings.TrimSpace(breakerResetEndpoint),
			Prefix:   strings.TrimSpace(breakerResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !breakerResetYes && !breakerResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListBreakerEntries(cmd.Context(), query)
		if err != nil {
			return err
		}
		matched := len(entries)

		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}
		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("breaker.reset.%s", outputExtension(format)))
		}
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if breakerResetDryRun {
			return writeResetResult(format, sink.writer, "circuit breaker", matched, 0, true)
		}

		deleted, err := db.ResetBreakers(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeResetResult(format, sink.writer, "circuit breaker", matched, deleted, false)
	},
}

func init() {
	breakerListCmd.Flags().StringVar(&breakerListEndpoint, "endpoint", "", "List a single endpoint (exact match)")
	breakerListCmd.Flags().StringVar(&breakerListPrefix, "prefix", "", "List endpoints with matching prefix")
	breakerListCmd.Flags().BoolVar(&breakerListAll, "all", false, "List all endpoints")
	breakerListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml")
	breakerListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	breakerListCmd.Flags().String("out-dir", "", "Write output to a directory")

	breakerResetCmd.Flags().BoolVar(&breakerResetAll, "all", false, "Reset all endpoints")
	breakerResetCmd.Flags().StringVar(&breakerResetEndpoint, "endpoint", "", "Reset a single endpoint (exact match)")
	breakerResetCmd.Flags().StringVar(&breakerResetPrefix, "prefix", "", "Reset endpoints with matching prefix")
	breakerResetCmd.Flags().BoolVar(&breakerResetYes, "yes", false, "Confirm destructive reset")
	breakerResetCmd.Flags().BoolVar(&breakerResetDryRun, "dry-run", false, "Show what would be deleted")
	breakerResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	breakerResetCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	breakerResetCmd.Flags().String("out-dir", "", "Write output to a directory")

	breakerCmd.AddCommand(breakerListCmd)
	breakerCmd.AddCommand(breakerResetCmd)
	rootCmd.AddCommand(breakerCmd)
}
