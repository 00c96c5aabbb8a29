package cli

import (
	"fmt"

	"github.com/JonMunkholm/deliveryingest/internal/report"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/spf13/cobra"
)

func newAnalyseCommand(a *app) *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Summarize ingested orders, ratings and jobs",
		Long: `Print the status breakdown per platform, the delivery-type mix, prep time and
ratings per restaurant, and the most recent ingestion jobs.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return validateReportFlags(format, limit)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := report.Build(cmd.Context(), store.New(pool), report.Options{Limit: limit})
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), rep, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", report.FormatText, "output format: text or json")
	cmd.Flags().IntVar(&limit, "limit", report.DefaultLimit, "rows per restaurant and job section")
	return cmd
}

func validateReportFlags(format string, limit int) error {
	if format != report.FormatText && format != report.FormatJSON {
		return fmt.Errorf("unknown format %q: use %s or %s", format, report.FormatText, report.FormatJSON)
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	return nil
}
