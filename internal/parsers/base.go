// Package parsers loads order exports and cost catalogs into records.
//
// Both CSV and XLSX files are supported. The first row holds the column
// names; every following non-empty row becomes one models.Record keyed by
// those names. Values are kept as strings: interpreting them is the job of
// the field resolver.
//
// Real shop exports are messy, so loading is lenient:
//   - headers are trimmed and duplicates get _1, _2 suffixes
//   - rows where every cell is blank are skipped
//   - oversized cells are truncated and reported as warnings
//   - CSV files may be UTF-8 (with or without BOM) or GB18030
//
// Example usage:
//
//	loader, err := parsers.NewLoader(parsers.DefaultConfig())
//	records, stats, err := loader.Load(ctx, "orders.csv")
package parsers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"
)

// ParseWarning describes a recoverable problem found while loading a file
type ParseWarning struct {
	Line    int    `json:"line"`
	Column  int    `json:"column,omitempty"`
	Header  string `json:"header,omitempty"`
	Message string `json:"message"`
}

func (w *ParseWarning) String() string {
	if w.Header != "" {
		return fmt.Sprintf("line %d, column %d (%s): %s", w.Line, w.Column, w.Header, w.Message)
	}
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	File             string          `json:"file"`
	Format           string          `json:"format"`
	Encoding         string          `json:"encoding,omitempty"`
	Headers          []string        `json:"headers"`
	TotalLines       int             `json:"total_lines"`
	RecordsParsed    int             `json:"records_parsed"`
	EmptyRows        int             `json:"empty_rows"`
	TruncatedFields  int             `json:"truncated_fields"`
	DuplicateHeaders int             `json:"duplicate_headers"`
	Warnings         []*ParseWarning `json:"warnings,omitempty"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(file, format string) *ParseStats {
	return &ParseStats{
		File:     file,
		Format:   format,
		Warnings: make([]*ParseWarning, 0),
	}
}

// AddWarning adds a warning to the parsing statistics
func (ps *ParseStats) AddWarning(w *ParseWarning) {
	ps.Warnings = append(ps.Warnings, w)
}

// HasWarnings returns true if there were any parsing warnings
func (ps *ParseStats) HasWarnings() bool {
	return len(ps.Warnings) > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d empty rows skipped), %d warnings",
		ps.TotalLines, ps.RecordsParsed, ps.EmptyRows, len(ps.Warnings))
}

// GetSampleWarnings returns up to maxSamples warnings prefixed with the file name
func (ps *ParseStats) GetSampleWarnings(maxSamples int) []string {
	limit := len(ps.Warnings)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, fmt.Sprintf("%s: %s", ps.File, ps.Warnings[i]))
	}
	return samples
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	LineNumber int
	Headers    []string
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{ctx: ctx}
}

// Err returns the context error once parsing has been cancelled
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// BaseParser turns raw rows into records. It is shared by the CSV and XLSX
// parsers so both formats get identical header and cell handling.
type BaseParser struct {
	config *Config
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *Config) *BaseParser {
	if config == nil {
		config = DefaultConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("parser"),
	}
}

// SetHeaders cleans the header row and stores it in the parse context
func (bp *BaseParser) SetHeaders(raw []string, parseCtx *ParseContext, stats *ParseStats) {
	headers, duplicates := DedupeHeaders(raw)
	parseCtx.Headers = headers
	stats.Headers = headers
	stats.DuplicateHeaders = duplicates

	if duplicates > 0 {
		stats.AddWarning(&ParseWarning{
			Line:    parseCtx.LineNumber,
			Message: fmt.Sprintf("%d duplicate column names were renamed with numeric suffixes", duplicates),
		})
	}

	bp.logger.WithFields(logger.Fields{
		"file":    stats.File,
		"headers": headers,
	}).Debug("Read header row")
}

// DedupeHeaders trims header names, names blank columns after their
// position and suffixes repeated names with _1, _2 and so on. It returns the
// new headers and the number of renamed duplicates.
func DedupeHeaders(raw []string) ([]string, int) {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	counts := make(map[string]int, len(raw))
	duplicates := 0

	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}

		name := h
		for used[name] {
			counts[h]++
			name = fmt.Sprintf("%s_%d", h, counts[h])
		}
		if name != h {
			duplicates++
		}

		used[name] = true
		headers[i] = name
	}

	return headers, duplicates
}

// BuildRecord converts a data row to a record. It returns false for rows
// whose cells are all blank. Missing trailing cells become empty strings;
// cells beyond the header row are kept under generated column names.
func (bp *BaseParser) BuildRecord(row []string, parseCtx *ParseContext, stats *ParseStats) (models.Record, bool) {
	if isEmptyRow(row) {
		stats.EmptyRows++
		return nil, false
	}

	record := make(models.Record, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		value := ""
		if i < len(row) {
			value = bp.limitField(row[i], i, header, parseCtx, stats)
		}
		record[header] = value
	}

	for i := len(parseCtx.Headers); i < len(row); i++ {
		if strings.TrimSpace(row[i]) == "" {
			continue
		}
		header := fmt.Sprintf("column_%d", i+1)
		if _, exists := record[header]; exists {
			continue
		}
		record[header] = bp.limitField(row[i], i, header, parseCtx, stats)
	}

	stats.RecordsParsed++
	return record, true
}

// limitField truncates values longer than MaxFieldRunes
func (bp *BaseParser) limitField(value string, column int, header string, parseCtx *ParseContext, stats *ParseStats) string {
	if utf8.RuneCountInString(value) <= bp.config.MaxFieldRunes {
		return value
	}

	stats.TruncatedFields++
	stats.AddWarning(&ParseWarning{
		Line:    parseCtx.LineNumber,
		Column:  column + 1,
		Header:  header,
		Message: fmt.Sprintf("value truncated to %d characters", bp.config.MaxFieldRunes),
	})

	bp.logger.WithFields(logger.Fields{
		"file":   stats.File,
		"line":   parseCtx.LineNumber,
		"column": header,
	}).Warn("Field exceeds maximum length")

	return string([]rune(value)[:bp.config.MaxFieldRunes])
}

// isEmptyRow checks if all fields in a row are empty or whitespace
func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
