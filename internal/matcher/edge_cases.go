package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"

	"github.com/shopspring/decimal"
)

// EdgeCaseHandler inspects catalogs for rows that the index silently
// collapses. The index keeps the last row per code and name; when the
// collapsed rows disagree on cost the report depends on catalog row order.
type EdgeCaseHandler struct {
	aliases resolver.AliasTable
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler(aliases resolver.AliasTable) *EdgeCaseHandler {
	if aliases == nil {
		aliases = resolver.DefaultProductAliases()
	}
	return &EdgeCaseHandler{aliases: aliases}
}

// DuplicateKind tells which index key the duplicate rows share
type DuplicateKind string

const (
	DuplicateCode DuplicateKind = "code"
	DuplicateName DuplicateKind = "name"
)

// DuplicateGroup represents catalog rows that share an index key
type DuplicateGroup struct {
	Kind DuplicateKind `json:"kind"`
	Key  string        `json:"key"`

	// Rows are the zero-based catalog row positions, in input order
	Rows []int `json:"rows"`

	// Costs are the distinct parsed costs of the rows, ascending
	Costs []decimal.Decimal `json:"costs"`

	// Effective is the cost the index uses (the last row's)
	Effective decimal.Decimal `json:"effective"`
}

// Conflicting reports whether the rows disagree on cost
func (g DuplicateGroup) Conflicting() bool {
	return len(g.Costs) > 1
}

// String returns a human-readable description of the group
func (g DuplicateGroup) String() string {
	costs := make([]string, len(g.Costs))
	for i, c := range g.Costs {
		costs[i] = c.StringFixed(2)
	}
	return fmt.Sprintf("product %s %q appears in %d rows with costs [%s]; using %s",
		g.Kind, g.Key, len(g.Rows), strings.Join(costs, ", "), g.Effective.StringFixed(2))
}

// DuplicateDetectionResult represents the result of duplicate detection
type DuplicateDetectionResult struct {
	Groups      []DuplicateGroup `json:"groups"`
	Conflicting int              `json:"conflicting"`
}

// DetectDuplicates finds catalog rows that share a code or a normalized
// name. Groups are sorted by kind, then key.
func (ech *EdgeCaseHandler) DetectDuplicates(products []models.Record) *DuplicateDetectionResult {
	codeRows := make(map[string][]int)
	nameRows := make(map[string][]int)

	for i, product := range products {
		if code := strings.TrimSpace(resolver.String(product, ech.aliases.Get(resolver.FieldCode), "")); code != "" {
			codeRows[code] = append(codeRows[code], i)
		}
		if name := NormalizeName(resolver.String(product, ech.aliases.Get(resolver.FieldName), "")); name != "" {
			nameRows[name] = append(nameRows[name], i)
		}
	}

	result := &DuplicateDetectionResult{}
	result.Groups = append(result.Groups, ech.groups(DuplicateCode, codeRows, products)...)
	result.Groups = append(result.Groups, ech.groups(DuplicateName, nameRows, products)...)

	for _, g := range result.Groups {
		if g.Conflicting() {
			result.Conflicting++
		}
	}

	return result
}

func (ech *EdgeCaseHandler) groups(kind DuplicateKind, rows map[string][]int, products []models.Record) []DuplicateGroup {
	keys := make([]string, 0, len(rows))
	for key, positions := range rows {
		if len(positions) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	groups := make([]DuplicateGroup, 0, len(keys))
	for _, key := range keys {
		positions := rows[key]
		g := DuplicateGroup{Kind: kind, Key: key, Rows: positions}

		seen := make(map[string]bool)
		for _, pos := range positions {
			cost := ech.cost(products[pos])
			if k := cost.String(); !seen[k] {
				seen[k] = true
				g.Costs = append(g.Costs, cost)
			}
		}
		sort.Slice(g.Costs, func(i, j int) bool { return g.Costs[i].LessThan(g.Costs[j]) })
		g.Effective = ech.cost(products[positions[len(positions)-1]])

		groups = append(groups, g)
	}
	return groups
}

func (ech *EdgeCaseHandler) cost(product models.Record) decimal.Decimal {
	return resolver.Amount(product, ech.aliases.Get(resolver.FieldCost), decimal.Zero)
}
