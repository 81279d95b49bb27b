package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"

	"golang.org/x/text/unicode/norm"
)

// ProductIndex provides constant time product lookups by code and name
type ProductIndex struct {
	// ByCode maps trimmed product codes to catalog rows
	ByCode map[string]models.Record

	// ByName maps normalized product names to catalog rows
	ByName map[string]models.Record

	// AllProducts holds all indexed catalog rows in input order
	AllProducts []models.Record

	// names holds the ByName keys in first insertion order
	names    []string
	nameLens []int

	duplicateCodes int
	duplicateNames int
	missingCode    int
	missingName    int
}

// IndexStats provides statistics about the product index
type IndexStats struct {
	TotalProducts  int `json:"total_products"`
	UniqueCodes    int `json:"unique_codes"`
	UniqueNames    int `json:"unique_names"`
	DuplicateCodes int `json:"duplicate_codes"`
	DuplicateNames int `json:"duplicate_names"`
	MissingCode    int `json:"missing_code"`
	MissingName    int `json:"missing_name"`
}

// NewProductIndex creates a product index from catalog rows. Rows sharing a
// code or name overwrite earlier ones, so the last row wins.
func NewProductIndex(products []models.Record, aliases resolver.AliasTable) *ProductIndex {
	if aliases == nil {
		aliases = resolver.DefaultProductAliases()
	}

	index := &ProductIndex{
		ByCode:      make(map[string]models.Record, len(products)),
		ByName:      make(map[string]models.Record, len(products)),
		AllProducts: products,
	}

	index.buildIndexes(aliases)
	return index
}

// buildIndexes constructs the code and name maps
func (pi *ProductIndex) buildIndexes(aliases resolver.AliasTable) {
	codeAliases := aliases.Get(resolver.FieldCode)
	nameAliases := aliases.Get(resolver.FieldName)

	for _, product := range pi.AllProducts {
		if code := strings.TrimSpace(resolver.String(product, codeAliases, "")); code != "" {
			if _, exists := pi.ByCode[code]; exists {
				pi.duplicateCodes++
			}
			pi.ByCode[code] = product
		} else {
			pi.missingCode++
		}

		if name := NormalizeName(resolver.String(product, nameAliases, "")); name != "" {
			if _, exists := pi.ByName[name]; exists {
				pi.duplicateNames++
			} else {
				pi.names = append(pi.names, name)
				pi.nameLens = append(pi.nameLens, utf8.RuneCountInString(name))
			}
			pi.ByName[name] = product
		} else {
			pi.missingName++
		}
	}
}

// GetByCode returns the product with the given code
func (pi *ProductIndex) GetByCode(code string) (models.Record, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, false
	}
	product, ok := pi.ByCode[code]
	return product, ok
}

// GetByName returns the product whose normalized name equals name
func (pi *ProductIndex) GetByName(name string) (models.Record, bool) {
	key := NormalizeName(name)
	if key == "" {
		return nil, false
	}
	product, ok := pi.ByName[key]
	return product, ok
}

// Names returns the normalized names in first insertion order
func (pi *ProductIndex) Names() []string {
	return append([]string(nil), pi.names...)
}

// GetIndexStats returns statistics about the product index
func (pi *ProductIndex) GetIndexStats() IndexStats {
	return IndexStats{
		TotalProducts:  len(pi.AllProducts),
		UniqueCodes:    len(pi.ByCode),
		UniqueNames:    len(pi.ByName),
		DuplicateCodes: pi.duplicateCodes,
		DuplicateNames: pi.duplicateNames,
		MissingCode:    pi.missingCode,
		MissingName:    pi.missingName,
	}
}

// NormalizeName folds full-width forms with NFKC, lowercases and trims
func NormalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFKC.String(name)))
}
