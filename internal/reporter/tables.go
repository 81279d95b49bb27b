package reporter

import (
	"fmt"

	"github.com/graymonk/taobao-reconciliation-new/internal/aggregator"
	"github.com/graymonk/taobao-reconciliation-new/internal/filter"
	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const timeLayout = "2006-01-02 15:04:05"

// table is one report section in a format neutral shape
type table struct {
	section Section
	headers []string
	rows    [][]string

	// title overrides the section title for sections with several tables
	title string

	// total counts all rows when rows holds only a listed prefix
	total int

	// numeric marks columns written as numbers to spreadsheets
	numeric map[int]bool
}

func (t table) name() string {
	if t.title != "" {
		return t.title
	}
	return t.section.Title()
}

// hidden returns how many rows were left out of the listing
func (t table) hidden() int {
	if t.total > len(t.rows) {
		return t.total - len(t.rows)
	}
	return 0
}

// detailRow is one order line of the details section
type detailRow struct {
	OrderID      string `csv:"订单号"`
	ProductCode  string `csv:"商品编码"`
	ProductName  string `csv:"商品名称"`
	Quantity     string `csv:"数量"`
	SellingPrice string `csv:"销售额"`
	UnitCost     string `csv:"成本单价"`
	TotalCost    string `csv:"总成本"`
	Profit       string `csv:"利润"`
	ProfitMargin string `csv:"利润率"`
	MatchStatus  string `csv:"匹配状态"`
	MatchMethod  string `csv:"匹配方式"`
}

var detailHeaders = []string{"订单号", "商品编码", "商品名称", "数量", "销售额", "成本单价", "总成本", "利润", "利润率", "匹配状态", "匹配方式"}

func (r detailRow) values() []string {
	return []string{
		r.OrderID, r.ProductCode, r.ProductName, r.Quantity, r.SellingPrice,
		r.UnitCost, r.TotalCost, r.Profit, r.ProfitMargin, r.MatchStatus, r.MatchMethod,
	}
}

// formatter renders numbers for one output format
type formatter struct {
	grouped bool
}

// money formats an amount with two decimals, with thousands separators
// for console output
func (f formatter) money(d decimal.Decimal) string {
	if f.grouped {
		return humanize.FormatFloat("#,###.##", d.InexactFloat64())
	}
	return d.StringFixed(2)
}

func (f formatter) percent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func (f formatter) ratio(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

func (f formatter) count(n int) string {
	if f.grouped {
		return humanize.Comma(int64(n))
	}
	return fmt.Sprint(n)
}

// StatusLabel returns the Chinese label of a match status
func StatusLabel(s models.MatchStatus) string {
	if s == models.MatchStatusMatched {
		return "已匹配"
	}
	return "未匹配"
}

// MethodLabel returns the Chinese label of a match method
func MethodLabel(m models.MatchMethod) string {
	switch m {
	case models.MatchMethodCode:
		return "编码匹配"
	case models.MatchMethodNameExact:
		return "名称精确匹配"
	case models.MatchMethodNameFuzzy:
		return "名称模糊匹配"
	default:
		return "无"
	}
}

func (f formatter) detailRows(report *aggregator.Report) []detailRow {
	rows := make([]detailRow, 0, len(report.PerOrder))
	for _, m := range report.PerOrder {
		rows = append(rows, detailRow{
			OrderID:      m.OrderID,
			ProductCode:  m.ProductCode,
			ProductName:  m.ProductName,
			Quantity:     m.Quantity.String(),
			SellingPrice: f.money(m.SellingPrice),
			UnitCost:     f.money(m.UnitCost),
			TotalCost:    f.money(m.TotalCost),
			Profit:       f.money(m.Profit),
			ProfitMargin: f.percent(m.ProfitMargin),
			MatchStatus:  StatusLabel(m.MatchStatus),
			MatchMethod:  MethodLabel(m.MatchMethod),
		})
	}
	return rows
}

// buildTables renders the selected sections in report order
func (rg *ReportGenerator) buildTables(result *pipeline.Result, f formatter) []table {
	var tables []table
	for _, s := range AllSections {
		if !rg.config.includes(s) {
			continue
		}
		switch s {
		case SectionSummary:
			tables = append(tables, summaryTable(result, f))
		case SectionDetails:
			tables = append(tables, detailsTable(result.Report, f))
		case SectionProducts:
			tables = append(tables, productsTable(result.Report, f))
		case SectionRisks:
			tables = append(tables,
				risksTable(result.Report, f),
				riskOrdersTable("低利润率订单", result.Report.LowMarginOrders, result.Report.LowMarginCount, f),
				riskOrdersTable("亏损订单", result.Report.LossOrders, result.Report.LossCount, f),
			)
		case SectionFilter:
			tables = append(tables, filterTable(result.Filter, f))
		}
	}
	return tables
}

func summaryTable(result *pipeline.Result, f formatter) table {
	t := result.Report.Totals
	return table{
		section: SectionSummary,
		headers: []string{"项目", "数值"},
		rows: [][]string{
			{"报告生成时间", result.FinishedAt.Format(timeLayout)},
			{"运行编号", result.RunID},
			{"订单总数", f.count(t.OrderCount)},
			{"已匹配", f.count(t.MatchedCount)},
			{"未匹配", f.count(t.UnmatchedCount)},
			{"匹配率", f.ratio(t.MatchRate)},
			{"总销售额", f.money(t.TotalRevenue)},
			{"总成本", f.money(t.TotalCost)},
			{"总利润", f.money(t.TotalProfit)},
			{"利润率", f.percent(t.ProfitMargin)},
			{"平均订单价值", f.money(t.AverageOrderValue)},
			{"平均利润", f.money(t.AverageProfit)},
		},
	}
}

func detailsTable(report *aggregator.Report, f formatter) table {
	rows := f.detailRows(report)
	t := table{
		section: SectionDetails,
		headers: detailHeaders,
		rows:    make([][]string, 0, len(rows)),
		numeric: map[int]bool{3: true, 4: true, 5: true, 6: true, 7: true},
	}
	for _, r := range rows {
		t.rows = append(t.rows, r.values())
	}
	return t
}

func productsTable(report *aggregator.Report, f formatter) table {
	t := table{
		section: SectionProducts,
		headers: []string{"商品名称", "订单数", "销售额", "成本", "利润", "利润率"},
		numeric: map[int]bool{1: true, 2: true, 3: true, 4: true},
	}
	for _, p := range report.ProductBreakdown {
		t.rows = append(t.rows, []string{
			p.Name, f.count(p.Count), f.money(p.Revenue), f.money(p.Cost), f.money(p.Profit), f.percent(p.ProfitMargin),
		})
	}
	return t
}

func risksTable(report *aggregator.Report, f formatter) table {
	t := table{
		section: SectionRisks,
		headers: []string{"风险等级", "订单数", "销售额", "订单占比"},
		numeric: map[int]bool{1: true, 2: true},
	}
	total := report.Totals.OrderCount
	for _, level := range aggregator.RiskLevels {
		b := report.Bucket(level)
		share := 0.0
		if total > 0 {
			share = float64(b.Count) / float64(total)
		}
		t.rows = append(t.rows, []string{level.Label(), f.count(b.Count), f.money(b.Revenue), f.ratio(share)})
	}
	return t
}

// riskOrdersTable lists the orders of one risk bucket
func riskOrdersTable(title string, orders []aggregator.OrderMetrics, total int, f formatter) table {
	t := table{
		section: SectionRisks,
		title:   title,
		headers: []string{"订单号", "商品名称", "销售额", "总成本", "利润", "利润率"},
		rows:    make([][]string, 0, len(orders)),
		total:   total,
		numeric: map[int]bool{2: true, 3: true, 4: true},
	}
	for _, m := range orders {
		t.rows = append(t.rows, []string{
			m.OrderID, m.ProductName, f.money(m.SellingPrice), f.money(m.TotalCost), f.money(m.Profit), f.percent(m.ProfitMargin),
		})
	}
	return t
}

func filterTable(result *filter.Result, f formatter) table {
	t := table{
		section: SectionFilter,
		headers: []string{"项目", "数值"},
	}
	if result == nil {
		return t
	}

	s := result.Stats
	t.rows = append(t.rows,
		[]string{"原始订单数", f.count(s.Total)},
		[]string{"保留订单数", f.count(s.Kept)},
		[]string{"排除订单数", f.count(s.Excluded)},
	)
	for _, c := range filter.Categories {
		t.rows = append(t.rows, []string{"排除原因：" + c.Label(), f.count(s.ByCategory[c])})
	}
	t.rows = append(t.rows,
		[]string{"订单总额", f.money(s.TotalAmount)},
		[]string{"保留订单金额", f.money(s.KeptAmount)},
		[]string{"保留订单均价", f.money(s.AverageKeptPrice)},
	)
	return t
}
