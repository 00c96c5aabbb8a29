package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/deliveryingest/internal/seed"
	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/spf13/cobra"
)

func newSeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Upsert platforms and integrations from a YAML file",
		Long: `Upsert platforms and integrations from a YAML file. Without an argument the
file named by SEED_FILE is used. The whole file is validated first and applied
in one transaction.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Seed.File
			if len(args) == 1 {
				path = args[0]
			}
			summary, err := a.runSeed(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d platforms and %d integrations from %s\n",
				summary.Platforms, summary.Integrations, path)
			return nil
		},
	}
}

func (a *app) runSeed(ctx context.Context, path string) (seed.Summary, error) {
	file, err := seed.LoadFile(path)
	if err != nil {
		return seed.Summary{}, err
	}

	pool, err := a.connect(ctx)
	if err != nil {
		return seed.Summary{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return seed.Summary{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	summary, err := seed.Apply(ctx, store.New(tx), file, slog.With("file", path))
	if err != nil {
		return seed.Summary{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return seed.Summary{}, fmt.Errorf("commit seed: %w", err)
	}
	return summary, nil
}
