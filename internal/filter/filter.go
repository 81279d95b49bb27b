// Package filter decides which orders take part in the sales report.
//
// Every order is evaluated once against an ordered chain of rules. The first
// rule that rejects the order determines its exclusion category, so the rule
// order matters for reporting even though it does not change which orders
// are kept:
//
//  1. status:  the order status must equal the required value
//  2. refund:  a completed refund excludes the order
//  3. remarks: a marker in the contact remarks excludes the order
//  4. price:   optional price range, applied when the price parses
//  5. date:    optional creation date range (string comparison)
//  6. keyword: optional comma separated keywords matched in the remarks
//
// The filter only annotates and partitions: it never drops or rewrites
// fields of the records it is given.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"

	"github.com/shopspring/decimal"
)

// Category is the rule that excluded an order. Kept orders have CategoryNone.
type Category string

const (
	CategoryNone    Category = ""
	CategoryStatus  Category = "status"
	CategoryRefund  Category = "refund"
	CategoryRemarks Category = "remarks"
	CategoryPrice   Category = "price"
	CategoryDate    Category = "date"
	CategoryKeyword Category = "keyword"
)

// Categories lists the exclusion categories in rule evaluation order
var Categories = []Category{
	CategoryStatus,
	CategoryRefund,
	CategoryRemarks,
	CategoryPrice,
	CategoryDate,
	CategoryKeyword,
}

// Label returns the Chinese label used in reports
func (c Category) Label() string {
	switch c {
	case CategoryStatus:
		return "订单状态"
	case CategoryRefund:
		return "退款"
	case CategoryRemarks:
		return "联系方式备注"
	case CategoryPrice:
		return "价格区间"
	case CategoryDate:
		return "日期范围"
	case CategoryKeyword:
		return "关键词"
	default:
		return "保留"
	}
}

// Annotated is an order together with the filter decision
type Annotated struct {
	Record   models.Record `json:"record"`
	Kept     bool          `json:"kept"`
	Category Category      `json:"category,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Stats aggregates the filter decisions of one run
type Stats struct {
	Total            int              `json:"total"`
	Kept             int              `json:"kept"`
	Excluded         int              `json:"excluded"`
	ByCategory       map[Category]int `json:"by_category"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	KeptAmount       decimal.Decimal  `json:"kept_amount"`
	AverageKeptPrice decimal.Decimal  `json:"average_kept_price"`
}

// Result is the output of one filter pass
type Result struct {
	Orders   []Annotated     `json:"orders"`
	Kept     []models.Record `json:"-"`
	Stats    Stats           `json:"stats"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Filter evaluates orders against a validated configuration
type Filter struct {
	config    *Config
	aliases   resolver.AliasTable
	keywords  []string
	dateStart string
	dateEnd   string
	warnings  []string
}

// New creates a filter. A nil config uses DefaultConfig. Date bounds that
// are not recognizable dates are dropped and reported through Warnings.
func New(config *Config) (*Filter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &Filter{
		config:   config,
		aliases:  config.Aliases,
		keywords: config.Keywords(),
	}
	if f.aliases == nil {
		f.aliases = resolver.DefaultOrderAliases()
	}

	if dr := config.DateRange; dr != nil {
		f.dateStart = f.checkDateBound("start", dr.Start)
		f.dateEnd = f.checkDateBound("end", dr.End)
	}

	return f, nil
}

var dateBoundLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006-01",
}

func (f *Filter) checkDateBound(name, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateBoundLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return value
		}
	}
	f.warnings = append(f.warnings, fmt.Sprintf("date range %s %q is not a valid date; the bound is ignored", name, value))
	return ""
}

// Warnings returns configuration diagnostics collected by New
func (f *Filter) Warnings() []string {
	return append([]string(nil), f.warnings...)
}

// Evaluate runs the rule chain for a single order
func (f *Filter) Evaluate(order models.Record) Annotated {
	a := Annotated{Record: order, Kept: true}
	exclude := func(c Category, reason string) Annotated {
		a.Kept = false
		a.Category = c
		a.Reason = reason
		return a
	}

	status := resolver.String(order, f.aliases.Get(resolver.FieldOrderStatus), "")
	if status != f.config.RequiredStatus {
		return exclude(CategoryStatus, fmt.Sprintf("订单状态为%q，不是%q", status, f.config.RequiredStatus))
	}

	if f.config.RefundStatus != "" {
		refund := resolver.String(order, f.aliases.Get(resolver.FieldRefundStatus), "")
		if refund == f.config.RefundStatus {
			return exclude(CategoryRefund, fmt.Sprintf("退款状态为%q", refund))
		}
	}

	contact := resolver.String(order, f.aliases.Get(resolver.FieldContactRemarks), "")
	for _, marker := range f.config.RemarksMarkers {
		if marker != "" && strings.Contains(contact, marker) {
			return exclude(CategoryRemarks, fmt.Sprintf("联系方式备注包含%q", marker))
		}
	}

	if pr := f.config.PriceRange; pr != nil {
		if price, ok := resolver.LookupAmount(order, f.aliases.Get(resolver.FieldFilterPrice)); ok {
			p := price.InexactFloat64()
			if p < pr.Min || p > pr.Max {
				return exclude(CategoryPrice, fmt.Sprintf("价格%s不在%g-%g之间", price.String(), pr.Min, pr.Max))
			}
		}
	}

	if f.dateStart != "" || f.dateEnd != "" {
		// A missing date compares as "" and so falls before any start bound.
		created := resolver.String(order, f.aliases.Get(resolver.FieldCreatedAt), "")
		if f.dateStart != "" && created < f.dateStart {
			if created == "" {
				return exclude(CategoryDate, fmt.Sprintf("缺少创建时间，无法判断是否早于%s", f.dateStart))
			}
			return exclude(CategoryDate, fmt.Sprintf("创建时间%s早于%s", created, f.dateStart))
		}
		if f.dateEnd != "" && truncate(created, len(f.dateEnd)) > f.dateEnd {
			return exclude(CategoryDate, fmt.Sprintf("创建时间%s晚于%s", created, f.dateEnd))
		}
	}

	if len(f.keywords) > 0 {
		remarks := strings.ToLower(resolver.String(order, f.aliases.Get(resolver.FieldRemarks), ""))
		for _, kw := range f.keywords {
			if strings.Contains(remarks, kw) {
				return exclude(CategoryKeyword, fmt.Sprintf("备注包含关键词%q", kw))
			}
		}
	}

	return a
}

// truncate cuts s to n bytes so a date-only end bound covers the whole day
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// Apply evaluates every order and summarizes the decisions
func (f *Filter) Apply(orders []models.Record) *Result {
	annotated := make([]Annotated, len(orders))
	for i, order := range orders {
		annotated[i] = f.Evaluate(order)
	}
	return f.Summarize(annotated)
}

// Summarize builds the result for already evaluated orders. It lets callers
// evaluate in chunks and still produce the same result as Apply.
func (f *Filter) Summarize(annotated []Annotated) *Result {
	result := &Result{
		Orders:   annotated,
		Kept:     make([]models.Record, 0, len(annotated)),
		Warnings: f.Warnings(),
		Stats: Stats{
			Total:            len(annotated),
			ByCategory:       make(map[Category]int, len(Categories)),
			TotalAmount:      decimal.Zero,
			KeptAmount:       decimal.Zero,
			AverageKeptPrice: decimal.Zero,
		},
	}
	for _, c := range Categories {
		result.Stats.ByCategory[c] = 0
	}

	priceAliases := f.aliases.Get(resolver.FieldFilterPrice)
	for _, a := range annotated {
		amount := resolver.Amount(a.Record, priceAliases, decimal.Zero)
		result.Stats.TotalAmount = result.Stats.TotalAmount.Add(amount)

		if !a.Kept {
			result.Stats.Excluded++
			result.Stats.ByCategory[a.Category]++
			continue
		}
		result.Stats.Kept++
		result.Stats.KeptAmount = result.Stats.KeptAmount.Add(amount)
		result.Kept = append(result.Kept, a.Record)
	}

	if result.Stats.Kept > 0 {
		result.Stats.AverageKeptPrice = result.Stats.KeptAmount.Div(decimal.NewFromInt(int64(result.Stats.Kept)))
	}

	return result
}
