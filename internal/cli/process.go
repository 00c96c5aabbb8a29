package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/source"
	"github.com/spf13/cobra"
)

func newProcessCommand(a *app) *cobra.Command {
	var (
		dryRun  bool
		samples int
	)

	cmd := &cobra.Command{
		Use:   "process <file> [integration]",
		Short: "Ingest one CSV file",
		Long: `Ingest one CSV file. The file may be a local path or an s3://bucket/key URI.

Without an integration key the integration is detected from the header row.
A file whose content was already ingested for the same integration is
reported as a duplicate and nothing is written.

Examples:
  ingest process exports/orders-2024-03.csv
  ingest process exports/ratings.csv platform2_counts
  ingest process s3://exports/platform3/segments.csv
  ingest process --dry-run exports/orders-2024-03.csv`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := strings.TrimSpace(args[0])
			var key string
			if len(args) == 2 {
				key = strings.TrimSpace(args[1])
			}
			if dryRun {
				return a.runPreview(cmd.Context(), cmd.OutOrStdout(), ref, key, samples)
			}
			return a.runProcess(cmd.Context(), cmd.OutOrStdout(), ref, key)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "map the file and print a preview without writing anything")
	cmd.Flags().IntVar(&samples, "samples", core.DefaultPreviewSamples, "rows of each kind shown by --dry-run")
	return cmd
}

func (a *app) runProcess(ctx context.Context, out io.Writer, ref, key string) error {
	if a.cfg.Ingest.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Ingest.Timeout)
		defer cancel()
	}

	fetcher, err := newFetcher(ctx, a.cfg, source.IsS3URI(ref))
	if err != nil {
		return err
	}
	file, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	defer file.Close()

	rt, err := a.newIngestRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.svc.ProcessFile(ctx, core.ProcessRequest{
		Path:           file.Path,
		SourcePath:     file.SourcePath,
		IntegrationKey: key,
	})
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func (a *app) runPreview(ctx context.Context, out io.Writer, ref, key string, samples int) error {
	fetcher, err := newFetcher(ctx, a.cfg, source.IsS3URI(ref))
	if err != nil {
		return err
	}
	file, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	defer file.Close()

	rt, err := a.newIngestRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	resp, err := rt.svc.Preview(ctx, core.PreviewRequest{
		Path:           file.Path,
		IntegrationKey: key,
		Samples:        samples,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func printResult(w io.Writer, r *core.Result) {
	if r.Duplicate {
		fmt.Fprintf(w, "skipped %s: already ingested for %s (hash %.12s)\n", r.FilePath, r.Integration, r.FileHash)
		return
	}
	fmt.Fprintf(w, "ingested %s with %s\n", r.FilePath, r.Integration)
	fmt.Fprintf(w, "  job:       %s\n", r.JobID)
	fmt.Fprintf(w, "  rows:      %d\n", r.TotalRows)
	fmt.Fprintf(w, "  processed: %d\n", r.Processed)
	fmt.Fprintf(w, "  inserted:  %d\n", r.Inserted)
	fmt.Fprintf(w, "  skipped:   %d\n", r.Skipped)
	fmt.Fprintf(w, "  duration:  %s\n", r.Duration.Round(time.Millisecond))
}
