package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/optimizer"
	"github.com/sells-group/prism/internal/report"
)

var (
	queryRegion        string
	queryBudget        float64
	queryIncludeMedium bool
	queryIncludeRoads  bool
	queryPrioritize    bool
	queryClass         string
	queryFormat        string
	queryOut           string
)

// writeOutput writes data to --out, or to the command's stdout when unset.
func writeOutput(cmd *cobra.Command, data []byte) error {
	var w io.Writer = cmd.OutOrStdout()
	if queryOut != "" {
		f, err := os.Create(queryOut)
		if err != nil {
			return eris.Wrap(err, "create output file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	_, err := w.Write(data)
	return eris.Wrap(err, "write output")
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := report.JSON(v)
	if err != nil {
		return err
	}
	return writeOutput(cmd, data)
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Select repairs for a region within a budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := allocate.DefaultOptions()
		opts.IncludeMediumRisk = queryIncludeMedium
		opts.IncludeRoads = queryIncludeRoads
		opts.PrioritizeCritical = queryPrioritize

		out, err := env.Service.Optimize(cmd.Context(), optimizer.OptimizeRequest{
			Region:  queryRegion,
			Budget:  queryBudget,
			Options: opts,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd, out)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare RCR selection with oldest-first selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Service.Compare(cmd.Context(), queryRegion, queryBudget)
		if err != nil {
			return err
		}
		return writeJSON(cmd, out)
	},
}

var highRiskCmd = &cobra.Command{
	Use:   "high-risk",
	Short: "List every HIGH or CRITICAL asset of a region",
	RunE: func(cmd *cobra.Command, args []string) error {
		class, err := optimizer.ParseClass(queryClass)
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Service.ListHighRisk(cmd.Context(), queryRegion, class)
		if err != nil {
			return err
		}
		return writeJSON(cmd, out)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an optimization as JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := optimizer.ParseFormat(queryFormat)
		if err != nil {
			return err
		}
		env, err := initEnv(cmd.Context(), "query")
		if err != nil {
			return err
		}
		defer env.Close()

		data, err := env.Service.Export(cmd.Context(), optimizer.ExportRequest{
			Region:       queryRegion,
			Budget:       queryBudget,
			Format:       format,
			IncludeRoads: queryIncludeRoads,
		})
		if err != nil {
			return err
		}
		return writeOutput(cmd, data)
	},
}

func init() {
	for _, c := range []*cobra.Command{optimizeCmd, compareCmd, highRiskCmd, exportCmd} {
		c.Flags().StringVar(&queryRegion, "region", "", "region name or abbreviation")
		c.Flags().StringVarP(&queryOut, "out", "o", "", "write output to file instead of stdout")
		_ = c.MarkFlagRequired("region")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{optimizeCmd, compareCmd, exportCmd} {
		c.Flags().Float64Var(&queryBudget, "budget", 0, "available budget in dollars")
		_ = c.MarkFlagRequired("budget")
	}
	for _, c := range []*cobra.Command{optimizeCmd, exportCmd} {
		c.Flags().BoolVar(&queryIncludeRoads, "include-roads", true, "include road sections")
	}
	optimizeCmd.Flags().BoolVar(&queryIncludeMedium, "include-medium", false, "include MEDIUM risk assets")
	optimizeCmd.Flags().BoolVar(&queryPrioritize, "prioritize-critical", false, "fund critical bridges, then critical roads, before RCR order")
	highRiskCmd.Flags().StringVar(&queryClass, "class", "all", "asset class: bridges, roads or all")
	exportCmd.Flags().StringVar(&queryFormat, "format", "json", "export format: json or csv")
}
