package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Record is one parsed row: column header to raw cell value. Values are
// strings or numbers; the column set is whatever the source file had.
type Record map[string]any

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record's field names in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MatchStatus tells whether an order was linked to a catalog product
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusUnmatched MatchStatus = "unmatched"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// MatchMethod records which lookup produced the product for an order
type MatchMethod string

const (
	MatchMethodCode      MatchMethod = "code"
	MatchMethodNameExact MatchMethod = "name_exact"
	MatchMethodNameFuzzy MatchMethod = "name_fuzzy"
	MatchMethodNone      MatchMethod = "none"
)

// String returns the string representation of MatchMethod
func (m MatchMethod) String() string {
	return string(m)
}

// IsValid checks if the match method is one of the known methods
func (m MatchMethod) IsValid() bool {
	switch m {
	case MatchMethodCode, MatchMethodNameExact, MatchMethodNameFuzzy, MatchMethodNone:
		return true
	default:
		return false
	}
}

// Keys added by EnrichedOrder.Record on top of the original order fields.
const (
	KeyMatchStatus      = "matchStatus"
	KeyMatchMethod      = "matchMethod"
	KeySellingPrice     = "sellingPrice"
	KeyResolvedQuantity = "resolvedQuantity"
	KeyUnitCost         = "unitCost"
	KeyTotalCost        = "totalCost"
	KeyProfit           = "profit"
	KeyProfitMargin     = "profitMargin"
)

var hundred = decimal.NewFromInt(100)

// ComputeOrderMetrics applies the per-order cost formula:
// totalCost = unitCost × quantity, profit = sellingPrice − totalCost and
// margin = profit / sellingPrice × 100, or 0 when sellingPrice is not positive.
func ComputeOrderMetrics(sellingPrice, quantity, unitCost decimal.Decimal) (totalCost, profit, margin decimal.Decimal) {
	totalCost = unitCost.Mul(quantity)
	profit = sellingPrice.Sub(totalCost)
	margin = decimal.Zero
	if sellingPrice.IsPositive() {
		margin = profit.Div(sellingPrice).Mul(hundred)
	}
	return totalCost, profit, margin
}

// EnrichedOrder is an order after cost matching. Order is the original row
// and is never modified; everything else is derived.
type EnrichedOrder struct {
	Order   Record `json:"order"`
	Product Record `json:"product,omitempty"`

	OrderID     string `json:"orderId"`
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`

	MatchStatus MatchStatus `json:"matchStatus"`
	MatchMethod MatchMethod `json:"matchMethod"`
	Similarity  float64     `json:"similarity"`

	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin decimal.Decimal `json:"profitMargin"`
}

// NewEnrichedOrder creates an unmatched order with zero unit cost
func NewEnrichedOrder(order Record, sellingPrice, quantity decimal.Decimal) *EnrichedOrder {
	e := &EnrichedOrder{
		Order:        order,
		MatchStatus:  MatchStatusUnmatched,
		MatchMethod:  MatchMethodNone,
		SellingPrice: sellingPrice,
		Quantity:     quantity,
		UnitCost:     decimal.Zero,
	}
	e.recompute()
	return e
}

// ApplyProduct marks the order as matched to product and recomputes the
// cost metrics with unitCost.
func (e *EnrichedOrder) ApplyProduct(product Record, method MatchMethod, unitCost decimal.Decimal, similarity float64) {
	e.Product = product
	e.MatchStatus = MatchStatusMatched
	e.MatchMethod = method
	e.Similarity = similarity
	e.UnitCost = unitCost
	e.recompute()
}

func (e *EnrichedOrder) recompute() {
	e.TotalCost, e.Profit, e.ProfitMargin = ComputeOrderMetrics(e.SellingPrice, e.Quantity, e.UnitCost)
}

// IsMatched reports whether a product was found for the order
func (e *EnrichedOrder) IsMatched() bool {
	return e.MatchStatus == MatchStatusMatched
}

// Record returns a new map holding every original order field plus the
// derived fields. A derived key that collides with an original column is
// skipped so the source value survives.
func (e *EnrichedOrder) Record() Record {
	out := e.Order.Clone()
	derived := map[string]any{
		KeyMatchStatus:      string(e.MatchStatus),
		KeyMatchMethod:      string(e.MatchMethod),
		KeySellingPrice:     e.SellingPrice.InexactFloat64(),
		KeyResolvedQuantity: e.Quantity.InexactFloat64(),
		KeyUnitCost:         e.UnitCost.InexactFloat64(),
		KeyTotalCost:        e.TotalCost.InexactFloat64(),
		KeyProfit:           e.Profit.InexactFloat64(),
		KeyProfitMargin:     e.ProfitMargin.Round(2).InexactFloat64(),
	}
	for k, v := range derived {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

// String returns a string representation of the EnrichedOrder
func (e *EnrichedOrder) String() string {
	return fmt.Sprintf("EnrichedOrder{ID: %s, Code: %s, Status: %s, Method: %s, Price: %s, Cost: %s, Profit: %s}",
		e.OrderID, e.ProductCode, e.MatchStatus, e.MatchMethod,
		e.SellingPrice.StringFixed(2), e.TotalCost.StringFixed(2), e.Profit.StringFixed(2))
}

// MarshalJSON renders money fields as fixed two-decimal strings and the
// margin rounded to two places.
func (e *EnrichedOrder) MarshalJSON() ([]byte, error) {
	type Alias EnrichedOrder
	return json.Marshal(&struct {
		SellingPrice string `json:"sellingPrice"`
		Quantity     string `json:"quantity"`
		UnitCost     string `json:"unitCost"`
		TotalCost    string `json:"totalCost"`
		Profit       string `json:"profit"`
		ProfitMargin string `json:"profitMargin"`
		*Alias
	}{
		SellingPrice: e.SellingPrice.StringFixed(2),
		Quantity:     e.Quantity.String(),
		UnitCost:     e.UnitCost.StringFixed(2),
		TotalCost:    e.TotalCost.StringFixed(2),
		Profit:       e.Profit.StringFixed(2),
		ProfitMargin: e.ProfitMargin.StringFixed(2),
		Alias:        (*Alias)(e),
	})
}
