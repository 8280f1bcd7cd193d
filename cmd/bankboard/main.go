package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"bankboard/pkg/analysis"
	"bankboard/pkg/config"
	"bankboard/pkg/export"
	"bankboard/pkg/generator"
	"bankboard/pkg/loader"
	"bankboard/pkg/margin"
)

var (
	cliFilters filters
	cfgFile    string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "bankboard",
	Short: "Bank operation and company margin analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <csv_path>",
	Short: "Analyze a bank CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("quantile") {
			cliFilters.quantile = cfg.Quantile
		}

		opts, err := cliFilters.toOptions()
		if err != nil {
			return err
		}
		if debug {
			pp.Println(opts)
		}

		exportPath, _ := cmd.Flags().GetString("export")
		summary, _ := cmd.Flags().GetBool("summary")

		matches, err := filepath.Glob(args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no files found matching pattern %s", args[0])
		}

		ld := loader.New(logger, cfg.Strict)
		analyzer := analysis.New(logger)
		for _, match := range matches {
			if err := analyzeFile(ld, analyzer, match, opts, exportPath, summary); err != nil {
				logger.Warn("failed to analyze file", "error", err, "file", match)
			}
		}
		return nil
	},
}

var marginCmd = &cobra.Command{
	Use:   "margin",
	Short: "Generate fake income/cost data and print the monthly margin table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		scenarioPath, _ := cmd.Flags().GetString("scenario")

		scenario := generator.Default()
		if scenarioPath != "" {
			var err error
			if scenario, err = generator.Load(scenarioPath); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("months") {
			scenario.Months, _ = cmd.Flags().GetInt("months")
		}
		if cmd.Flags().Changed("seed") {
			scenario.Seed, _ = cmd.Flags().GetInt64("seed")
		}
		if debug {
			pp.Println(scenario)
		}

		incomes, costs := scenario.Generate(time.Now())
		totals := margin.CalculateTotals(incomes, costs)
		monthly := margin.ByMonth(incomes, costs)

		fmt.Printf("Total income: %s\n", totals.TotalIncome.StringFixed(2))
		fmt.Printf("Total costs:  %s\n", totals.TotalCosts.StringFixed(2))
		fmt.Printf("Net margin:   %s\n\n", totals.NetMargin.StringFixed(2))

		fmt.Printf("%-8s %14s %14s %14s %9s\n", "Month", "Income", "Costs", "Margin", "Margin %")
		for _, m := range monthly {
			fmt.Printf("%-8s %14s %14s %14s %8s%%\n",
				m.Month,
				m.Income.StringFixed(2),
				m.Costs.StringFixed(2),
				m.Margin.StringFixed(2),
				m.MarginPct.StringFixed(2),
			)
		}

		if exportPath, _ := cmd.Flags().GetString("export"); exportPath != "" {
			f, err := os.Create(exportPath)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()
			if err := export.WriteMonthlyMargins(f, monthly); err != nil {
				return err
			}
			fmt.Printf("\nMargin table written to %s\n", exportPath)
		}
		return nil
	},
}

func analyzeFile(ld *loader.Loader, analyzer *analysis.Analyzer, path string, opts analysis.Options, exportPath string, summary bool) error {
	result, err := ld.LoadFile(path)
	if err != nil {
		return err
	}

	report := analyzer.Run(result.Operations, opts)

	fmt.Printf("%s: %d operations (%d rows skipped)\n", path, len(result.Operations), result.Skipped)
	fmt.Printf("Expenses: %d kept, %d excluded as outliers\n", report.Statistics.Count, report.Excluded)
	fmt.Printf("Total: %s  Mean: %s  Min: %s  Max: %s\n\n",
		report.Statistics.Total.StringFixed(2),
		report.Statistics.Mean.StringFixed(2),
		report.Statistics.Min.StringFixed(2),
		report.Statistics.Max.StringFixed(2),
	)

	fmt.Printf("%-24s %14s %8s\n", "Category", "Total", "Share")
	for _, ct := range report.CategoryTotals {
		fmt.Printf("%-24s %14s %7s%%\n", ct.Category, ct.Total.StringFixed(2), ct.Share.StringFixed(2))
	}

	if len(report.Pivot.Months) > 0 {
		fmt.Printf("\n%-24s", "Category")
		for _, m := range report.Pivot.Months {
			fmt.Printf(" %12s", m)
		}
		fmt.Printf(" %14s\n", "Total")
		for _, row := range report.Pivot.Rows {
			fmt.Printf("%-24s", row.Category)
			for _, cell := range row.Cells {
				fmt.Printf(" %12s", cell.StringFixed(2))
			}
			fmt.Printf(" %14s\n", row.Total.StringFixed(2))
		}
	}

	if summary {
		out := export.Create(
			[]string{"Date", "Category", "Subcategory", "Label", "Total"},
			report.Summary,
			func(r analysis.SummaryRow) []string {
				return []string{r.Date, r.Category, r.Subcategory, r.Label, r.Total.StringFixed(2)}
			},
			nil,
		)
		fmt.Printf("\n%s", out)
	}

	if exportPath != "" {
		f, err := os.Create(exportPath)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		if err := export.WriteOperations(f, report.Expenses); err != nil {
			return err
		}
		fmt.Printf("\nFiltered operations written to %s\n", exportPath)
	}
	return nil
}

func newLogger() *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    debug,
		ReportTimestamp: true,
		Prefix:          "bankboard",
		Level:           level,
	})
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose logging and option dumps")

	// Filter flags (global)
	rootCmd.PersistentFlags().StringVar(&cliFilters.startDate, "start", "", "Start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&cliFilters.endDate, "end", "", "End date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringSliceVar(&cliFilters.categories, "category", nil, "Keep only these categories")
	rootCmd.PersistentFlags().StringSliceVar(&cliFilters.subcategories, "subcategory", nil, "Keep only these subcategories")
	rootCmd.PersistentFlags().Float64Var(&cliFilters.quantile, "quantile", analysis.DefaultQuantile, "Outlier exclusion quantile (0 to 1)")

	// Flags specific to subcommands
	analyzeCmd.Flags().String("export", "", "Write the filtered operations to a CSV file")
	analyzeCmd.Flags().Bool("summary", false, "Print the summary table as CSV")
	marginCmd.Flags().String("scenario", "", "Scenario YAML file")
	marginCmd.Flags().Int("months", 12, "Number of months to generate")
	marginCmd.Flags().Int64("seed", 1, "Random seed")
	marginCmd.Flags().String("export", "", "Write the margin table to a CSV file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(marginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
