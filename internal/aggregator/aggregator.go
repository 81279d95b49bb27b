// Package aggregator rolls enriched orders up into the financial figures of
// the sales report: per-order metrics, totals, a top product breakdown and
// margin risk buckets.
//
// Aggregation is a pure reduction. It never mutates its input, produces the
// same report for the same orders, and guards every ratio against an empty
// denominator.
package aggregator

import (
	"fmt"
	"sort"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"

	"github.com/shopspring/decimal"
)

// UnknownProductName labels orders without a product name
const UnknownProductName = "未知商品"

// Config controls the report shape
type Config struct {
	// TopN is the number of products kept in the breakdown
	TopN int `json:"top_n" mapstructure:"top_n"`

	// NameMaxRunes truncates long product names before grouping
	NameMaxRunes int `json:"name_max_runes" mapstructure:"name_max_runes"`

	// HighMarginRatio and MidMarginRatio are profit to price ratios
	HighMarginRatio float64 `json:"high_margin_ratio" mapstructure:"high_margin_ratio"`
	MidMarginRatio  float64 `json:"mid_margin_ratio" mapstructure:"mid_margin_ratio"`

	// OrderListLimit caps the low margin and loss order lists
	OrderListLimit int `json:"order_list_limit" mapstructure:"order_list_limit"`
}

// DefaultConfig returns the standard report shape
func DefaultConfig() *Config {
	return &Config{
		TopN:            8,
		NameMaxRunes:    20,
		HighMarginRatio: 0.25,
		MidMarginRatio:  0.15,
		OrderListLimit:  30,
	}
}

// Validate checks if the aggregation configuration is valid
func (c *Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("top N must be positive: %d", c.TopN)
	}
	if c.NameMaxRunes <= 0 {
		return fmt.Errorf("product name length must be positive: %d", c.NameMaxRunes)
	}
	if c.MidMarginRatio < 0 || c.HighMarginRatio > 1 || c.MidMarginRatio > c.HighMarginRatio {
		return fmt.Errorf("margin ratios must satisfy 0 <= mid (%g) <= high (%g) <= 1", c.MidMarginRatio, c.HighMarginRatio)
	}
	if c.OrderListLimit <= 0 {
		return fmt.Errorf("order list limit must be positive: %d", c.OrderListLimit)
	}
	return nil
}

// RiskLevel classifies an order by its profit relative to its price
type RiskLevel string

const (
	RiskHigh RiskLevel = "high"
	RiskMid  RiskLevel = "mid"
	RiskLow  RiskLevel = "low"
	RiskLoss RiskLevel = "loss"
)

// RiskLevels lists the levels in report order
var RiskLevels = []RiskLevel{RiskHigh, RiskMid, RiskLow, RiskLoss}

// Label returns the Chinese label used in reports
func (r RiskLevel) Label() string {
	switch r {
	case RiskHigh:
		return "高利润"
	case RiskMid:
		return "中利润"
	case RiskLow:
		return "低利润"
	case RiskLoss:
		return "亏损"
	default:
		return string(r)
	}
}

// OrderMetrics holds the financial figures of a single order
type OrderMetrics struct {
	OrderID      string             `json:"order_id"`
	ProductCode  string             `json:"product_code"`
	ProductName  string             `json:"product_name"`
	MatchStatus  models.MatchStatus `json:"match_status"`
	MatchMethod  models.MatchMethod `json:"match_method"`
	SellingPrice decimal.Decimal    `json:"selling_price"`
	Quantity     decimal.Decimal    `json:"quantity"`
	UnitCost     decimal.Decimal    `json:"unit_cost"`
	TotalCost    decimal.Decimal    `json:"total_cost"`
	Profit       decimal.Decimal    `json:"profit"`
	ProfitMargin decimal.Decimal    `json:"profit_margin"`
	Risk         RiskLevel          `json:"risk"`
}

// Totals summarizes the whole order set
type Totals struct {
	OrderCount        int             `json:"order_count"`
	MatchedCount      int             `json:"matched_count"`
	UnmatchedCount    int             `json:"unmatched_count"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	ProfitMargin      decimal.Decimal `json:"profit_margin"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	AverageProfit     decimal.Decimal `json:"average_profit"`

	// MatchRate is matched / total as a ratio between 0 and 1
	MatchRate float64 `json:"match_rate"`
}

// ProductSummary aggregates the orders of one product name
type ProductSummary struct {
	Name         string          `json:"name"`
	Count        int             `json:"count"`
	Revenue      decimal.Decimal `json:"revenue"`
	Cost         decimal.Decimal `json:"cost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
}

// RiskBucket counts the orders of one risk level
type RiskBucket struct {
	Level   RiskLevel       `json:"level"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Report is the output of one aggregation
type Report struct {
	PerOrder         []OrderMetrics   `json:"per_order"`
	Totals           Totals           `json:"totals"`
	ProductBreakdown []ProductSummary `json:"product_breakdown"`
	RiskBuckets      []RiskBucket     `json:"risk_buckets"`

	// LowMarginOrders and LossOrders list the first OrderListLimit orders
	// of the low and loss buckets in input order. The counts cover all of them.
	LowMarginOrders []OrderMetrics `json:"low_margin_orders"`
	LowMarginCount  int            `json:"low_margin_count"`
	LossOrders      []OrderMetrics `json:"loss_orders"`
	LossCount       int            `json:"loss_count"`
}

// Bucket returns the bucket for level
func (r *Report) Bucket(level RiskLevel) RiskBucket {
	for _, b := range r.RiskBuckets {
		if b.Level == level {
			return b
		}
	}
	return RiskBucket{Level: level, Revenue: decimal.Zero}
}

// Aggregator computes reports with a fixed configuration
type Aggregator struct {
	config    *Config
	highRatio decimal.Decimal
	midRatio  decimal.Decimal
}

// New creates an aggregator. A nil config uses DefaultConfig.
func New(config *Config) (*Aggregator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Aggregator{
		config:    config,
		highRatio: decimal.NewFromFloat(config.HighMarginRatio),
		midRatio:  decimal.NewFromFloat(config.MidMarginRatio),
	}, nil
}

var hundred = decimal.NewFromInt(100)

// Aggregate computes the report for orders
func (a *Aggregator) Aggregate(orders []*models.EnrichedOrder) *Report {
	report := &Report{
		PerOrder:         make([]OrderMetrics, 0, len(orders)),
		ProductBreakdown: []ProductSummary{},
		LowMarginOrders:  []OrderMetrics{},
		LossOrders:       []OrderMetrics{},
	}

	totals := Totals{
		OrderCount:        len(orders),
		TotalRevenue:      decimal.Zero,
		TotalCost:         decimal.Zero,
		TotalProfit:       decimal.Zero,
		ProfitMargin:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		AverageProfit:     decimal.Zero,
	}

	buckets := make(map[RiskLevel]*RiskBucket, len(RiskLevels))
	for _, level := range RiskLevels {
		buckets[level] = &RiskBucket{Level: level, Revenue: decimal.Zero}
	}

	products := make(map[string]*ProductSummary)

	for _, e := range orders {
		m := a.orderMetrics(e)
		report.PerOrder = append(report.PerOrder, m)

		totals.TotalRevenue = totals.TotalRevenue.Add(m.SellingPrice)
		totals.TotalCost = totals.TotalCost.Add(m.TotalCost)
		if m.MatchStatus == models.MatchStatusMatched {
			totals.MatchedCount++
		} else {
			totals.UnmatchedCount++
		}

		b := buckets[m.Risk]
		b.Count++
		b.Revenue = b.Revenue.Add(m.SellingPrice)

		p, ok := products[m.ProductName]
		if !ok {
			p = &ProductSummary{Name: m.ProductName, Revenue: decimal.Zero, Cost: decimal.Zero, Profit: decimal.Zero}
			products[m.ProductName] = p
		}
		p.Count++
		p.Revenue = p.Revenue.Add(m.SellingPrice)
		p.Cost = p.Cost.Add(m.TotalCost)
		p.Profit = p.Profit.Add(m.Profit)

		switch m.Risk {
		case RiskLow:
			report.LowMarginCount++
			report.LowMarginOrders = a.appendListed(report.LowMarginOrders, m)
		case RiskLoss:
			report.LossCount++
			report.LossOrders = a.appendListed(report.LossOrders, m)
		}
	}

	totals.TotalProfit = totals.TotalRevenue.Sub(totals.TotalCost)
	totals.ProfitMargin = margin(totals.TotalProfit, totals.TotalRevenue)
	if totals.OrderCount > 0 {
		n := decimal.NewFromInt(int64(totals.OrderCount))
		totals.AverageOrderValue = totals.TotalRevenue.Div(n)
		totals.AverageProfit = totals.TotalProfit.Div(n)
		totals.MatchRate = float64(totals.MatchedCount) / float64(totals.OrderCount)
	}
	report.Totals = totals

	report.ProductBreakdown = a.topProducts(products)

	report.RiskBuckets = make([]RiskBucket, 0, len(RiskLevels))
	for _, level := range RiskLevels {
		report.RiskBuckets = append(report.RiskBuckets, *buckets[level])
	}

	return report
}

func (a *Aggregator) appendListed(list []OrderMetrics, m OrderMetrics) []OrderMetrics {
	if len(list) < a.config.OrderListLimit {
		list = append(list, m)
	}
	return list
}

// orderMetrics recomputes the order figures with the shared formula
func (a *Aggregator) orderMetrics(e *models.EnrichedOrder) OrderMetrics {
	totalCost, profit, margin := models.ComputeOrderMetrics(e.SellingPrice, e.Quantity, e.UnitCost)

	return OrderMetrics{
		OrderID:      e.OrderID,
		ProductCode:  e.ProductCode,
		ProductName:  a.displayName(e.ProductName),
		MatchStatus:  e.MatchStatus,
		MatchMethod:  e.MatchMethod,
		SellingPrice: e.SellingPrice,
		Quantity:     e.Quantity,
		UnitCost:     e.UnitCost,
		TotalCost:    totalCost,
		Profit:       profit,
		ProfitMargin: margin,
		Risk:         a.Classify(e.SellingPrice, profit),
	}
}

// Classify places an order in exactly one risk bucket
func (a *Aggregator) Classify(sellingPrice, profit decimal.Decimal) RiskLevel {
	switch {
	case !profit.IsPositive():
		return RiskLoss
	case profit.GreaterThanOrEqual(sellingPrice.Mul(a.highRatio)):
		return RiskHigh
	case profit.GreaterThanOrEqual(sellingPrice.Mul(a.midRatio)):
		return RiskMid
	default:
		return RiskLow
	}
}

// displayName falls back to UnknownProductName and truncates by runes
func (a *Aggregator) displayName(name string) string {
	if name == "" {
		return UnknownProductName
	}
	runes := []rune(name)
	if len(runes) > a.config.NameMaxRunes {
		return string(runes[:a.config.NameMaxRunes]) + "..."
	}
	return name
}

// topProducts sorts by revenue descending, then name, and keeps TopN
func (a *Aggregator) topProducts(products map[string]*ProductSummary) []ProductSummary {
	list := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		p.ProfitMargin = margin(p.Profit, p.Revenue)
		list = append(list, *p)
	}

	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Revenue.Cmp(list[j].Revenue); c != 0 {
			return c > 0
		}
		return list[i].Name < list[j].Name
	})

	if len(list) > a.config.TopN {
		list = list[:a.config.TopN]
	}
	return list
}

func margin(profit, revenue decimal.Decimal) decimal.Decimal {
	if !revenue.IsPositive() {
		return decimal.Zero
	}
	return profit.Div(revenue).Mul(hundred)
}
