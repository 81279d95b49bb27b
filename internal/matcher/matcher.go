package matcher

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"

	"github.com/shopspring/decimal"
)

// DefaultBatchSize is the number of orders matched between cancellation checks
const DefaultBatchSize = 500

// MatchingEngine is the core engine responsible for cost matching
type MatchingEngine struct {
	Config         *MatchingConfig
	ProductIndex   *ProductIndex
	OrderAliases   resolver.AliasTable
	ProductAliases resolver.AliasTable

	// BatchSize is the number of orders processed between context checks
	BatchSize int

	duplicates *DuplicateDetectionResult
}

// maxConflictWarnings limits how many cost conflicts are listed individually
const maxConflictWarnings = 10

// MatchResult represents the complete result of a matching pass
type MatchResult struct {
	Orders   []*models.EnrichedOrder `json:"orders"`
	Stats    MatchStats              `json:"stats"`
	Warnings []string                `json:"warnings,omitempty"`
}

// MatchStats provides aggregate statistics about a matching pass
type MatchStats struct {
	Total          int                        `json:"total"`
	Matched        int                        `json:"matched"`
	Unmatched      int                        `json:"unmatched"`
	ByMethod       map[models.MatchMethod]int `json:"by_method"`
	MatchRate      float64                    `json:"match_rate"`
	FuzzyLimitHits int                        `json:"fuzzy_limit_hits"`
	Index          IndexStats                 `json:"index"`
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config:         config,
		OrderAliases:   resolver.DefaultOrderAliases(),
		ProductAliases: resolver.DefaultProductAliases(),
		BatchSize:      DefaultBatchSize,
	}
}

// WithAliases replaces the alias tables used to read orders and products.
// A nil table keeps the current one.
func (me *MatchingEngine) WithAliases(orders, products resolver.AliasTable) *MatchingEngine {
	if orders != nil {
		me.OrderAliases = orders
	}
	if products != nil {
		me.ProductAliases = products
	}
	return me
}

// LoadProducts loads catalog rows into the engine and builds indexes
func (me *MatchingEngine) LoadProducts(products []models.Record) {
	me.ProductIndex = NewProductIndex(products, me.ProductAliases)
	me.duplicates = NewEdgeCaseHandler(me.ProductAliases).DetectDuplicates(products)
}

// Duplicates returns the duplicate catalog rows found by LoadProducts
func (me *MatchingEngine) Duplicates() *DuplicateDetectionResult {
	if me.duplicates == nil {
		return &DuplicateDetectionResult{}
	}
	return me.duplicates
}

// Match enriches every order with its matched product and cost metrics.
// Orders come back in input order. Unmatched orders are reported through
// their status, never as an error; the only error is cancellation of ctx,
// in which case no partial result is returned.
func (me *MatchingEngine) Match(ctx context.Context, orders []models.Record) (*MatchResult, error) {
	if me.ProductIndex == nil {
		me.LoadProducts(nil)
	}

	batchSize := me.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	enriched := make([]*models.EnrichedOrder, 0, len(orders))
	limitHits := 0

	for start := 0; start < len(orders); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, len(orders))
		for _, order := range orders[start:end] {
			e, limited := me.matchOrder(order)
			if limited {
				limitHits++
			}
			enriched = append(enriched, e)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &MatchResult{
		Orders: enriched,
		Stats:  me.calculateStats(enriched),
	}
	result.Stats.FuzzyLimitHits = limitHits
	result.Warnings = me.diagnose(orders, limitHits)

	return result, nil
}

// MatchOrder enriches a single order
func (me *MatchingEngine) MatchOrder(order models.Record) *models.EnrichedOrder {
	if me.ProductIndex == nil {
		me.LoadProducts(nil)
	}
	e, _ := me.matchOrder(order)
	return e
}

// matchOrder resolves the order fields and runs the configured lookups. The
// second return value reports whether the fuzzy scan hit its comparison cap.
func (me *MatchingEngine) matchOrder(order models.Record) (*models.EnrichedOrder, bool) {
	price := resolver.Amount(order, me.OrderAliases.Get(resolver.FieldSellingPrice), decimal.Zero)
	quantity := resolver.Amount(order, me.OrderAliases.Get(resolver.FieldQuantity), decimal.NewFromInt(1))

	e := models.NewEnrichedOrder(order, price, quantity)
	e.OrderID = resolver.String(order, me.OrderAliases.Get(resolver.FieldOrderID), "")
	e.ProductCode = resolver.String(order, me.OrderAliases.Get(resolver.FieldExternalCode), "")
	e.ProductName = resolver.String(order, me.OrderAliases.Get(resolver.FieldProductName), "")

	if me.Config.usesCode() {
		if product, ok := me.ProductIndex.GetByCode(e.ProductCode); ok {
			me.apply(e, product, models.MatchMethodCode, 100)
			return e, false
		}
	}

	if me.Config.usesName() {
		if product, ok := me.ProductIndex.GetByName(e.ProductName); ok {
			me.apply(e, product, models.MatchMethodNameExact, 100)
			return e, false
		}
	}

	if me.Config.Strategy == StrategyName {
		product, score, limited := me.fuzzyLookup(e.ProductName)
		if product != nil {
			me.apply(e, product, models.MatchMethodNameFuzzy, score)
		}
		return e, limited
	}

	return e, false
}

// fuzzyLookup scans catalog names in insertion order and returns the first
// product whose similarity reaches the threshold.
func (me *MatchingEngine) fuzzyLookup(name string) (models.Record, float64, bool) {
	key := NormalizeName(name)
	if key == "" {
		return nil, 0, false
	}
	keyLen := utf8.RuneCountInString(key)

	for i, candidate := range me.ProductIndex.names {
		if i >= me.Config.MaxFuzzyComparisons {
			return nil, 0, true
		}
		if score := similarity(key, candidate, keyLen, me.ProductIndex.nameLens[i]); score >= me.Config.FuzzyThreshold {
			return me.ProductIndex.ByName[candidate], score, false
		}
	}

	return nil, 0, false
}

func (me *MatchingEngine) apply(e *models.EnrichedOrder, product models.Record, method models.MatchMethod, similarity float64) {
	unitCost := resolver.Amount(product, me.ProductAliases.Get(resolver.FieldCost), decimal.Zero)
	e.ApplyProduct(product, method, unitCost, similarity)
}

// calculateStats calculates summary statistics for the enriched orders
func (me *MatchingEngine) calculateStats(orders []*models.EnrichedOrder) MatchStats {
	stats := MatchStats{
		Total: len(orders),
		ByMethod: map[models.MatchMethod]int{
			models.MatchMethodCode:      0,
			models.MatchMethodNameExact: 0,
			models.MatchMethodNameFuzzy: 0,
			models.MatchMethodNone:      0,
		},
		Index: me.ProductIndex.GetIndexStats(),
	}

	for _, e := range orders {
		stats.ByMethod[e.MatchMethod]++
		if e.IsMatched() {
			stats.Matched++
		} else {
			stats.Unmatched++
		}
	}

	if stats.Total > 0 {
		stats.MatchRate = float64(stats.Matched) / float64(stats.Total)
	}

	return stats
}

// diagnose explains conditions that make matching unlikely to succeed
func (me *MatchingEngine) diagnose(orders []models.Record, limitHits int) []string {
	var warnings []string

	if len(me.ProductIndex.AllProducts) == 0 {
		warnings = append(warnings, "product catalog is empty; every order is unmatched")
	}

	if len(orders) > 0 {
		if me.Config.usesCode() && !resolver.HasField(orders, me.OrderAliases.Get(resolver.FieldExternalCode)) {
			warnings = append(warnings, fmt.Sprintf("orders have no product code column (tried %v)", me.OrderAliases.Get(resolver.FieldExternalCode)))
		}
		if me.Config.usesName() && !resolver.HasField(orders, me.OrderAliases.Get(resolver.FieldProductName)) {
			warnings = append(warnings, fmt.Sprintf("orders have no product name column (tried %v)", me.OrderAliases.Get(resolver.FieldProductName)))
		}
	}

	if len(me.ProductIndex.AllProducts) > 0 {
		stats := me.ProductIndex.GetIndexStats()
		if me.Config.usesCode() && stats.UniqueCodes == 0 {
			warnings = append(warnings, "product catalog has no product codes")
		}
		if me.Config.usesName() && stats.UniqueNames == 0 {
			warnings = append(warnings, "product catalog has no product names")
		}
	}

	listed := 0
	for _, g := range me.Duplicates().Groups {
		if !g.Conflicting() {
			continue
		}
		if listed == maxConflictWarnings {
			warnings = append(warnings, fmt.Sprintf("%d more catalog cost conflicts not listed", me.Duplicates().Conflicting-listed))
			break
		}
		warnings = append(warnings, g.String())
		listed++
	}

	if limitHits > 0 {
		warnings = append(warnings, fmt.Sprintf("fuzzy matching stopped after %d comparisons for %d orders", me.Config.MaxFuzzyComparisons, limitHits))
	}

	return warnings
}

// ValidateConfiguration validates the matching engine configuration
func (me *MatchingEngine) ValidateConfiguration() error {
	if err := me.Config.Validate(); err != nil {
		return err
	}
	if err := me.OrderAliases.Validate(); err != nil {
		return fmt.Errorf("invalid order aliases: %w", err)
	}
	if err := me.ProductAliases.Validate(); err != nil {
		return fmt.Errorf("invalid product aliases: %w", err)
	}
	return nil
}
