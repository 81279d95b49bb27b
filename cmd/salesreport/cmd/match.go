package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"
	"github.com/graymonk/taobao-reconciliation-new/internal/reporter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyMatchLimit = "match.limit"

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Check how well orders match the cost catalog",
	Long: `Match runs the filter and the cost matcher and prints matching
statistics, catalog index statistics, duplicate catalog rows and the
orders that found no product.

Use it to tune --strategy and --threshold before building reports.

Examples:
  salesreport match --orders orders.csv --products costs.xlsx
  salesreport match --orders orders.csv --products costs.csv --strategy name --threshold 70 --limit 50`,

	PreRunE: validateMatchFlags,
	RunE:    runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	addInputFlags(matchCmd)
	matchCmd.Flags().Int("limit", 20, "unmatched orders listed (0 lists all)")

	bindFlags(matchCmd, map[string]string{"limit": keyMatchLimit})
}

func validateMatchFlags(cmd *cobra.Command, args []string) error {
	bindInputFlags(cmd)

	if _, err := buildRequest(); err != nil {
		return err
	}
	if viper.GetInt(keyMatchLimit) < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	result, err := executePipeline(cmd)
	if err != nil {
		return err
	}
	if err := requireResult(result); err != nil {
		return err
	}

	printMatchReport(cmd.OutOrStdout(), result, viper.GetInt(keyMatchLimit))
	return nil
}

// printMatchReport writes the matching diagnostics of result
func printMatchReport(w io.Writer, result *pipeline.Result, limit int) {
	stats := result.Match.Stats

	fmt.Fprintf(w, "=== 匹配统计 ===\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "订单数\t%s\n", humanize.Comma(int64(stats.Total)))
	fmt.Fprintf(tw, "已匹配\t%s\n", humanize.Comma(int64(stats.Matched)))
	fmt.Fprintf(tw, "未匹配\t%s\n", humanize.Comma(int64(stats.Unmatched)))
	fmt.Fprintf(tw, "匹配率\t%.2f%%\n", stats.MatchRate*100)
	for _, method := range []models.MatchMethod{models.MatchMethodCode, models.MatchMethodNameExact, models.MatchMethodNameFuzzy} {
		fmt.Fprintf(tw, "%s\t%s\n", reporter.MethodLabel(method), humanize.Comma(int64(stats.ByMethod[method])))
	}
	if stats.FuzzyLimitHits > 0 {
		fmt.Fprintf(tw, "模糊比较达到上限\t%s\n", humanize.Comma(int64(stats.FuzzyLimitHits)))
	}
	tw.Flush()

	index := stats.Index
	fmt.Fprintf(w, "\n=== 商品目录 ===\n")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "商品行数\t%s\n", humanize.Comma(int64(index.TotalProducts)))
	fmt.Fprintf(tw, "唯一编码\t%s\n", humanize.Comma(int64(index.UniqueCodes)))
	fmt.Fprintf(tw, "唯一名称\t%s\n", humanize.Comma(int64(index.UniqueNames)))
	fmt.Fprintf(tw, "重复编码\t%s\n", humanize.Comma(int64(index.DuplicateCodes)))
	fmt.Fprintf(tw, "重复名称\t%s\n", humanize.Comma(int64(index.DuplicateNames)))
	fmt.Fprintf(tw, "缺少编码\t%s\n", humanize.Comma(int64(index.MissingCode)))
	fmt.Fprintf(tw, "缺少名称\t%s\n", humanize.Comma(int64(index.MissingName)))
	tw.Flush()

	if result.Duplicates != nil && result.Duplicates.Conflicting > 0 {
		fmt.Fprintf(w, "\n=== 成本冲突 (%d) ===\n", result.Duplicates.Conflicting)
		for _, g := range result.Duplicates.Groups {
			if g.Conflicting() {
				fmt.Fprintf(w, "  - %s\n", g)
			}
		}
	}

	var unmatched []*models.EnrichedOrder
	for _, e := range result.Match.Orders {
		if e.MatchStatus != models.MatchStatusMatched {
			unmatched = append(unmatched, e)
		}
	}
	if len(unmatched) == 0 {
		return
	}

	fmt.Fprintf(w, "\n=== 未匹配订单 (%d) ===\n", len(unmatched))
	shown := unmatched
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "订单号\t商品编码\t商品名称\t销售额")
	for _, e := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.OrderID, e.ProductCode, e.ProductName, e.SellingPrice.StringFixed(2))
	}
	tw.Flush()
	if hidden := len(unmatched) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "... 还有 %d 条订单未显示\n", hidden)
	}
}
