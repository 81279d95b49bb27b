// Package reporter renders pipeline results as sales reports.
//
// Supported output formats:
//   - Console: aligned text for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one block per section, prefixed with a UTF-8 BOM for spreadsheets
//   - XLSX: one sheet per section
//
// Every format renders the same sections (总览, 明细, 商品统计, 风险分析,
// 过滤统计), each of which can be switched off through ReportConfig.Sections.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:   reporter.FormatXLSX,
//		Sections: reporter.AllSections,
//	})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/jszwec/csvutil"
	"github.com/tealeg/xlsx/v2"
)

// utf8BOM lets spreadsheet tools detect UTF-8 CSV files
const utf8BOM = "\uFEFF"

// ReportGenerator generates sales reports in various formats
type ReportGenerator struct {
	config *ReportConfig
	logger logger.Logger
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output", config.Format, err).
			WithSuggestion("use format console, json, csv or xlsx and sections summary, details, products, risks, filter")
	}

	return &ReportGenerator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// GenerateReport renders result and writes it to writer
func (rg *ReportGenerator) GenerateReport(result *pipeline.Result, writer io.Writer) error {
	if result == nil || result.Report == nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "result", nil, nil).
			WithSuggestion("run the pipeline before generating a report")
	}
	if writer == nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "writer", nil, nil)
	}

	var err error
	switch rg.config.Format {
	case FormatConsole:
		err = rg.generateConsoleReport(result, writer)
	case FormatJSON:
		err = rg.generateJSONReport(result, writer)
	case FormatCSV:
		err = rg.generateCSVReport(result, writer)
	case FormatXLSX:
		err = rg.generateXLSXReport(result, writer)
	default:
		return apperrors.ExportError(apperrors.CodeUnsupportedFormat, string(rg.config.Format), nil)
	}

	if err != nil {
		rg.logger.WithError(err).WithField("format", rg.config.Format).Error("Report generation failed")
		return apperrors.ExportError(apperrors.CodeWriteFailed, string(rg.config.Format), err)
	}

	rg.logger.WithFields(logger.Fields{
		"format":   rg.config.Format,
		"run_id":   result.RunID,
		"sections": len(rg.config.Sections),
	}).Debug("Report generated")
	return nil
}

// generateConsoleReport writes aligned text tables
func (rg *ReportGenerator) generateConsoleReport(result *pipeline.Result, writer io.Writer) error {
	ew := &errWriter{w: writer}

	fmt.Fprintf(ew, "销售报告\n")
	fmt.Fprintf(ew, "生成时间: %s\n", result.FinishedAt.Format(timeLayout))
	fmt.Fprintf(ew, "运行编号: %s\n\n", result.RunID)

	for _, t := range rg.buildTables(result, formatter{grouped: true}) {
		fmt.Fprintf(ew, "=== %s ===\n", t.name())

		rows := t.rows
		hidden := t.hidden()
		if t.section == SectionDetails && rg.config.MaxConsoleRows > 0 && len(rows) > rg.config.MaxConsoleRows {
			hidden = len(rows) - rg.config.MaxConsoleRows
			rows = rows[:rg.config.MaxConsoleRows]
		}

		tw := tabwriter.NewWriter(ew, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if hidden > 0 {
			fmt.Fprintf(ew, "... 还有 %d 条订单未显示\n", hidden)
		}
		fmt.Fprintln(ew)
	}

	if rg.config.IncludeWarnings && len(result.Warnings) > 0 {
		fmt.Fprintf(ew, "=== 警告 (%d) ===\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Fprintf(ew, "  - %s\n", w)
		}
	}

	return ew.err
}

// generateJSONReport writes the selected sections as one JSON document
func (rg *ReportGenerator) generateJSONReport(result *pipeline.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) filterResultForOutput(result *pipeline.Result) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":       result.RunID,
		"generated_at": result.FinishedAt.Format(time.RFC3339),
	}

	report := result.Report
	if rg.config.includes(SectionSummary) {
		output["summary"] = report.Totals
	}
	if rg.config.includes(SectionDetails) {
		output["details"] = report.PerOrder
	}
	if rg.config.includes(SectionProducts) {
		output["products"] = report.ProductBreakdown
	}
	if rg.config.includes(SectionRisks) {
		output["risks"] = map[string]interface{}{
			"buckets":           report.RiskBuckets,
			"low_margin_orders": report.LowMarginOrders,
			"low_margin_count":  report.LowMarginCount,
			"loss_orders":       report.LossOrders,
			"loss_count":        report.LossCount,
		}
	}
	if rg.config.includes(SectionFilter) && result.Filter != nil {
		output["filter"] = result.Filter.Stats
	}
	if rg.config.IncludeWarnings && len(result.Warnings) > 0 {
		output["warnings"] = result.Warnings
	}

	return output
}

// generateCSVReport writes each section as a titled block
func (rg *ReportGenerator) generateCSVReport(result *pipeline.Result, writer io.Writer) error {
	if _, err := io.WriteString(writer, utf8BOM); err != nil {
		return err
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	f := formatter{}
	for i, t := range rg.buildTables(result, f) {
		if i > 0 {
			if err := csvWriter.Write([]string{}); err != nil {
				return err
			}
		}
		if err := csvWriter.Write([]string{t.name()}); err != nil {
			return err
		}

		if t.section == SectionDetails {
			if err := writeDetailRows(csvWriter, f.detailRows(result.Report)); err != nil {
				return err
			}
			continue
		}

		if err := csvWriter.Write(t.headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
		for _, row := range t.rows {
			if err := csvWriter.Write(row); err != nil {
				return err
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// writeDetailRows encodes order lines with their csv struct tags as header
func writeDetailRows(w *csv.Writer, rows []detailRow) error {
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(detailRow{}); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// generateXLSXReport writes one sheet per section
func (rg *ReportGenerator) generateXLSXReport(result *pipeline.Result, writer io.Writer) error {
	file := xlsx.NewFile()

	for _, t := range rg.buildTables(result, formatter{}) {
		sheet, err := file.AddSheet(t.name())
		if err != nil {
			return err
		}

		header := sheet.AddRow()
		for _, h := range t.headers {
			header.AddCell().SetString(h)
		}

		for _, values := range t.rows {
			row := sheet.AddRow()
			for i, v := range values {
				cell := row.AddCell()
				if t.numeric[i] {
					if n, err := strconv.ParseFloat(v, 64); err == nil {
						cell.SetFloat(n)
						continue
					}
				}
				cell.SetString(v)
			}
		}
	}

	return file.Write(writer)
}

// errWriter remembers the first write error so console output can be
// written with plain Fprintf calls
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}
