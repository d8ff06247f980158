package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/marketlens/marketlens/internal/output"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent governed fetches",
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

		entries, err := db.ListRecentFetches(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		lines := []string{"Fetch History", ""}
		if len(entries) == 0 {
			lines = append(lines, "(no recorded fetches)")
			fmt.Print(ascii.DrawBox(strings.Join(lines, "\n"), 0))
			return nil
		}

		for _, entry := range entries {
			status := "ok"
			if !entry.Success {
				status = "failed"
				if entry.ErrorType != "" {
					status = entry.ErrorType
				}
			}
			lines = append(lines, fmt.Sprintf("%s %s bucket=%s attempts=%d %s",
				entry.FetchedAt.UTC().Format(time.RFC3339), entry.Endpoint, entry.Bucket, entry.Attempts, status))
		}

		fmt.Print(ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show")
	historyCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	rootCmd.AddCommand(historyCmd)
}
