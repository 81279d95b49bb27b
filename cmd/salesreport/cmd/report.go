package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/graymonk/taobao-reconciliation-new/cmd/salesreport/config"
	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"
	"github.com/graymonk/taobao-reconciliation-new/internal/reporter"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Viper keys of the input file flags
const (
	keyOrders   = "orders"
	keyProducts = "products"
	keyProgress = "progress"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a profit report from order exports and a cost catalog",
	Long: `Report filters the order exports, matches each kept order against the
cost catalog and renders revenue, cost, profit and risk statistics.

Orders are kept when their status is 交易成功, they are not refunded and
their contact remarks carry no (收) marker. Price, date and keyword rules
are optional.

Examples:
  # Console report
  salesreport report --orders orders.csv --products costs.xlsx

  # Several exports, one spreadsheet written to a directory
  salesreport report --orders jan.csv,feb.csv --products costs.xlsx \
    --format xlsx --output reports/

  # Only summary and risks as JSON, for March orders above 10 yuan
  salesreport report --orders orders.csv --products costs.xlsx --format json \
    --sections summary,risks --start-date 2024-03-01 --end-date 2024-03-31 --min-price 10

  # Fuzzy name matching for catalogs without codes
  salesreport report --orders orders.csv --products costs.csv --strategy name --threshold 75`,

	PreRunE: validateReportFlags,
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	addInputFlags(reportCmd)

	reportCmd.Flags().StringP("format", "f", "console", "output format: console, json, csv, xlsx")
	reportCmd.Flags().StringP("output", "o", "", "output file or directory (default: stdout, or 销售报告_<date>.xlsx for xlsx)")
	reportCmd.Flags().StringSlice("sections", []string{}, "report sections: summary, details, products, risks, filter (default: all)")
	reportCmd.Flags().Int("max-rows", 20, "detail rows printed by the console format (0 prints all)")

	bindFlags(reportCmd, map[string]string{
		"format":   config.KeyOutputFormat,
		"output":   config.KeyOutputFile,
		"sections": config.KeyOutputSections,
		"max-rows": config.KeyOutputMaxRows,
	})
}

// addInputFlags registers the flags shared by report and match
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("orders", []string{}, "comma-separated order export files, CSV or XLSX (required)")
	cmd.Flags().String("products", "", "cost catalog file, CSV or XLSX (required)")

	cmd.Flags().String("strategy", "hybrid", "matching strategy: code, name, hybrid")
	cmd.Flags().Float64("threshold", 80, "fuzzy name similarity threshold in percent (50-100)")

	cmd.Flags().String("start-date", "", "keep orders created on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("end-date", "", "keep orders created on or before this date (YYYY-MM-DD)")
	cmd.Flags().Float64("min-price", 0, "keep orders priced at least this amount")
	cmd.Flags().Float64("max-price", 0, "keep orders priced at most this amount")
	cmd.Flags().String("exclude-keywords", "", "exclude orders whose remarks contain any of these comma-separated keywords")

	cmd.Flags().String("encoding", "auto", "CSV encoding: auto, utf-8, gbk, gb18030")
	cmd.Flags().String("sheet", "", "XLSX sheet name (default: first sheet)")
	cmd.Flags().Int("batch-size", pipeline.DefaultBatchSize, "orders processed between cancellation checks")
	cmd.Flags().Bool("progress", false, "show progress on a terminal")

	cmd.MarkFlagRequired("orders")
	cmd.MarkFlagRequired("products")
}

// inputFlagKeys maps the shared input flags onto configuration keys
var inputFlagKeys = map[string]string{
	"orders":           keyOrders,
	"products":         keyProducts,
	"strategy":         config.KeyMatchStrategy,
	"threshold":        config.KeyMatchThreshold,
	"start-date":       config.KeyFilterStart,
	"end-date":         config.KeyFilterEnd,
	"min-price":        config.KeyFilterMinPrice,
	"max-price":        config.KeyFilterMaxPrice,
	"exclude-keywords": config.KeyFilterKeywords,
	"encoding":         config.KeyInputEncoding,
	"sheet":            config.KeyInputSheet,
	"batch-size":       config.KeyBatchSize,
	"progress":         keyProgress,
}

// bindFlags binds extra flags of cmd to viper keys. The input flags are
// shared by several commands and are bound when the command runs, since
// viper holds a single binding per key.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

// bindInputFlags binds the shared input flags of the running command. Only
// flags set on the command line are bound so that unset flags do not hide
// config file values of the optional filter rules.
func bindInputFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := inputFlagKeys[f.Name]
		if !ok {
			return
		}
		switch f.Name {
		case "min-price", "max-price":
			if f.Changed {
				viper.Set(key, f.Value.String())
			}
		default:
			viper.BindPFlag(key, f)
		}
	})
}

func validateReportFlags(cmd *cobra.Command, args []string) error {
	bindInputFlags(cmd)

	if _, err := buildRequest(); err != nil {
		return err
	}
	if _, err := config.CreatePipelineConfig(viper.GetViper()); err != nil {
		return err
	}
	_, err := config.CreateReportConfig(viper.GetViper())
	return err
}

// buildRequest reads the input file settings
func buildRequest() (*pipeline.Request, error) {
	request := &pipeline.Request{
		OrderFiles:  viper.GetStringSlice(keyOrders),
		ProductFile: strings.TrimSpace(viper.GetString(keyProducts)),
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return request, nil
}

// executePipeline runs the configured pipeline over the input files,
// stopping cleanly on interrupt
func executePipeline(cmd *cobra.Command) (*pipeline.Result, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	request, err := buildRequest()
	if err != nil {
		return nil, err
	}

	pipelineConfig, err := config.CreatePipelineConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	service, err := pipeline.NewService(pipelineConfig)
	if err != nil {
		return nil, err
	}

	stderr := cmd.ErrOrStderr()
	if viper.GetBool(keyProgress) && isTerminal(stderr) {
		service.AddProgressCallback(func(p pipeline.Progress) {
			fmt.Fprintf(stderr, "\r[%d/%d] %-10s %5.1f%%", p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
			if p.CurrentStep == pipeline.StepCompleted {
				fmt.Fprintln(stderr)
			}
		})
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "Orders: %s\n", strings.Join(request.OrderFiles, ", "))
		fmt.Fprintf(stderr, "Products: %s\n", request.ProductFile)
		fmt.Fprintf(stderr, "Matching: %s\n", pipelineConfig.Matching)
	}

	return service.RunFiles(ctx, request)
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runReport(cmd *cobra.Command, args []string) error {
	result, err := executePipeline(cmd)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(viper.GetViper())
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	path := reporter.ResolveOutputPath(viper.GetString(config.KeyOutputFile), reportConfig.Format, time.Now())
	if path == "" {
		if err := generator.GenerateReport(result, cmd.OutOrStdout()); err != nil {
			return err
		}
	} else {
		written, err := generator.WriteReport(result, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", written)
	}

	if viper.GetBool("verbose") {
		printRunSummary(cmd.ErrOrStderr(), result)
	}
	return nil
}

// printRunSummary writes a short run digest for verbose mode
func printRunSummary(w io.Writer, result *pipeline.Result) {
	totals := result.Report.Totals
	fmt.Fprintf(w, "\nRun %s completed in %s.\n", result.RunID, result.Duration().Round(time.Millisecond))
	if result.Filter != nil {
		fmt.Fprintf(w, "Kept %s of %s orders.\n",
			humanize.Comma(int64(result.Filter.Stats.Kept)), humanize.Comma(int64(result.Filter.Stats.Total)))
	}
	fmt.Fprintf(w, "Matched %s orders, %s unmatched.\n",
		humanize.Comma(int64(totals.MatchedCount)), humanize.Comma(int64(totals.UnmatchedCount)))
	for _, stage := range []string{pipeline.StepLoad, pipeline.StepFilter, pipeline.StepMatch, pipeline.StepAggregate} {
		if d, ok := result.StageDurations[stage]; ok {
			fmt.Fprintf(w, "  %-10s %s\n", stage, d.Round(time.Microsecond))
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "%d warnings.\n", len(result.Warnings))
	}
}

// requireResult guards commands that print parts of a result
func requireResult(result *pipeline.Result) error {
	if result == nil || result.Report == nil || result.Match == nil {
		return apperrors.InternalError(apperrors.CodeUnexpectedError, "pipeline", fmt.Errorf("pipeline returned no result"))
	}
	return nil
}
