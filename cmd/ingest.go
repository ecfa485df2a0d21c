package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prism/internal/asset"
	"github.com/sells-group/prism/internal/fetcher"
	"github.com/sells-group/prism/internal/ingest"
)

var (
	ingestKind       string
	ingestRegion     string
	ingestSheet      string
	ingestDryRun     bool
	ingestMaxRejects int

	loadsRegion string
	loadsLimit  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url>...",
	Short: "Load bridge or road-section files into the asset store",
	Long: "Reads CSV, JSON or XLSX sources (optionally zipped, local or http(s)), normalizes them " +
		"and replaces the stored snapshot of every region present. Sources of the same asset class " +
		"are combined first, so several files for one region load together.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(ingestKind)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := ingest.Options{
			Kind:          kind,
			Region:        ingestRegion,
			Sheet:         ingestSheet,
			ResolveRegion: env.Tables.ResolveRegion,
			Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
				UserAgent: cfg.Ingest.UserAgent,
				Timeout:   time.Duration(cfg.Ingest.DownloadTimeoutSec) * time.Second,
				Retry:     retryConfig(),
			}),
		}
		batches, err := ingest.LoadFiles(cmd.Context(), args, opts, cfg.Ingest.MaxConcurrentFiles)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, b := range batches {
			printBatch(out, b, ingestMaxRejects)
		}
		merged, dups := ingest.Merge(batches)
		for _, fe := range dups {
			fmt.Fprintf(out, "  %s\n", fe.Error())
		}
		if ingestDryRun {
			return nil
		}
		for _, b := range merged {
			loads, err := ingest.Save(cmd.Context(), env.Store, b)
			if err != nil {
				return err
			}
			for _, l := range loads {
				fmt.Fprintf(out, "  stored %d %s record(s) for %s (load %s)\n", l.Records, l.Kind, l.Region, l.ID)
			}
		}
		return nil
	},
}

var loadsCmd = &cobra.Command{
	Use:   "loads",
	Short: "Show recent ingest loads, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		region := ""
		if loadsRegion != "" {
			r, ok := env.Tables.ResolveRegion(loadsRegion)
			if !ok {
				return eris.Errorf("unknown region %q", loadsRegion)
			}
			region = r
		}
		loads, err := env.Store.ListLoads(cmd.Context(), region, loadsLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, l := range loads {
			fmt.Fprintf(out, "%s  %-26s %-6s %6d  %s  %s\n",
				l.LoadedAt.Format(time.RFC3339), l.Region, l.Kind, l.Records, l.ID, l.Source)
		}
		return nil
	},
}

func parseKind(s string) (asset.Kind, error) {
	switch s {
	case "", "auto":
		return "", nil
	case "bridge", "bridges":
		return asset.KindBridge, nil
	case "road", "roads":
		return asset.KindRoad, nil
	}
	return "", eris.Errorf("unknown --kind %q (want bridge, road or auto)", s)
}

func printBatch(w io.Writer, b *ingest.Batch, maxRejects int) {
	fmt.Fprintf(w, "%s: %d %s record(s), %d rejected\n", b.Source, len(b.Records), b.Kind, len(b.Rejected))
	if len(b.Ignored) > 0 {
		fmt.Fprintf(w, "  ignored columns: %v\n", b.Ignored)
	}
	for i, fe := range b.Rejected {
		if maxRejects >= 0 && i >= maxRejects {
			fmt.Fprintf(w, "  ... %d more\n", len(b.Rejected)-i)
			break
		}
		fmt.Fprintf(w, "  %s\n", fe.Error())
	}
	if len(b.Rejected) > 0 {
		zap.L().Warn("ingest: rows rejected",
			zap.String("source", b.Source),
			zap.Int("rejected", len(b.Rejected)),
		)
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKind, "kind", "auto", "asset class: bridge, road or auto")
	ingestCmd.Flags().StringVar(&ingestRegion, "region", "", "region for rows that do not name one")
	ingestCmd.Flags().StringVar(&ingestSheet, "sheet", "", "XLSX worksheet name (default first sheet)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and report without writing to the store")
	ingestCmd.Flags().IntVar(&ingestMaxRejects, "max-rejects", 20, "rejected rows to print per source (-1 for all)")
	rootCmd.AddCommand(ingestCmd)

	loadsCmd.Flags().StringVar(&loadsRegion, "region", "", "only loads for this region")
	loadsCmd.Flags().IntVar(&loadsLimit, "limit", 20, "maximum loads to show")
	rootCmd.AddCommand(loadsCmd)
}
