package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/deliveryingest/internal/admin"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/spf13/cobra"
)

var errResetNotConfirmed = errors.New("reset deletes all ingested data; pass --yes to confirm")

func newResetCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete ingested data, jobs and the processed-file ledger",
		Long: `Truncate restaurants, orders, ratings, ingestion jobs and the processed-file
ledger. Platforms and integrations are kept, so files can be ingested again
straight away.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := admin.Reset(cmd.Context(), store.New(pool), slog.Default())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"removed %d restaurants, %d orders, %d ratings, %d jobs and %d ledger entries\n",
				removed.Restaurants, removed.Orders, removed.Ratings, removed.Jobs, removed.ProcessedFiles)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}
