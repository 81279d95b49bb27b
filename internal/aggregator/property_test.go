package aggregator

import (
	"reflect"
	"testing"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

type orderSpec struct {
	PriceCents int64
	Quantity   int64
	CostCents  int64
	Matched    bool
	Product    int
}

func genOrderSpec() gopter.Gen {
	return gen.StructPtr(reflect.TypeOf(&orderSpec{}), map[string]gopter.Gen{
		"PriceCents": gen.Int64Range(-1000, 1000000),
		"Quantity":   gen.Int64Range(0, 20),
		"CostCents":  gen.Int64Range(0, 500000),
		"Matched":    gen.Bool(),
		"Product":    gen.IntRange(0, 15),
	})
}

func buildOrders(specs []*orderSpec) []*models.EnrichedOrder {
	names := []string{"白色衬衫", "蓝色T恤", "黑色长裤", ""}
	orders := make([]*models.EnrichedOrder, 0, len(specs))
	for _, s := range specs {
		e := models.NewEnrichedOrder(models.Record{}, decimal.New(s.PriceCents, -2), decimal.NewFromInt(s.Quantity))
		e.ProductName = names[s.Product%len(names)]
		if s.Matched {
			e.ApplyProduct(models.Record{}, models.MatchMethodCode, decimal.New(s.CostCents, -2), 100)
		}
		orders = append(orders, e)
	}
	return orders
}

// TestAggregateProperties verifies the reduction invariants of Aggregate.
func TestAggregateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	a, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	properties.Property("totals equal the sum of per-order figures", prop.ForAll(
		func(specs []*orderSpec) bool {
			report := a.Aggregate(buildOrders(specs))
			revenue, cost := decimal.Zero, decimal.Zero
			for _, m := range report.PerOrder {
				revenue = revenue.Add(m.SellingPrice)
				cost = cost.Add(m.TotalCost)
				if !m.Profit.Equal(m.SellingPrice.Sub(m.TotalCost)) {
					return false
				}
			}
			return revenue.Equal(report.Totals.TotalRevenue) &&
				cost.Equal(report.Totals.TotalCost) &&
				report.Totals.TotalProfit.Equal(revenue.Sub(cost))
		},
		gen.SliceOf(genOrderSpec()),
	))

	properties.Property("risk buckets partition the orders", prop.ForAll(
		func(specs []*orderSpec) bool {
			report := a.Aggregate(buildOrders(specs))
			count := 0
			revenue := decimal.Zero
			for _, b := range report.RiskBuckets {
				count += b.Count
				revenue = revenue.Add(b.Revenue)
			}
			return count == len(specs) && revenue.Equal(report.Totals.TotalRevenue)
		},
		gen.SliceOf(genOrderSpec()),
	))

	properties.Property("aggregation is idempotent", prop.ForAll(
		func(specs []*orderSpec) bool {
			orders := buildOrders(specs)
			first, second := a.Aggregate(orders), a.Aggregate(orders)
			return first.Totals.TotalRevenue.Equal(second.Totals.TotalRevenue) &&
				first.Totals.TotalProfit.Equal(second.Totals.TotalProfit) &&
				first.Totals.MatchRate == second.Totals.MatchRate &&
				len(first.ProductBreakdown) == len(second.ProductBreakdown)
		},
		gen.SliceOf(genOrderSpec()),
	))

	properties.Property("totals do not depend on order", prop.ForAll(
		func(specs []*orderSpec) bool {
			orders := buildOrders(specs)
			reversed := make([]*models.EnrichedOrder, len(orders))
			for i, e := range orders {
				reversed[len(orders)-1-i] = e
			}
			x, y := a.Aggregate(orders), a.Aggregate(reversed)
			if len(x.ProductBreakdown) != len(y.ProductBreakdown) {
				return false
			}
			for i := range x.ProductBreakdown {
				if x.ProductBreakdown[i].Name != y.ProductBreakdown[i].Name {
					return false
				}
			}
			return x.Totals.TotalRevenue.Equal(y.Totals.TotalRevenue) &&
				x.Totals.TotalCost.Equal(y.Totals.TotalCost) &&
				x.Totals.MatchedCount == y.Totals.MatchedCount
		},
		gen.SliceOf(genOrderSpec()),
	))

	properties.TestingRun(t)
}
