package parsers

import (
	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/tealeg/xlsx/v2"
)

// XLSXParser reads one sheet of an Excel workbook
type XLSXParser struct {
	*BaseParser
}

// NewXLSXParser creates an XLSX parser
func NewXLSXParser(config *Config) (*XLSXParser, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "input", config.Encoding, err)
	}
	return &XLSXParser{BaseParser: NewBaseParser(config)}, nil
}

// ParseFile reads the configured sheet, or the first one, from path
func (p *XLSXParser) ParseFile(parseCtx *ParseContext, path string) ([]models.Record, *ParseStats, error) {
	stats := NewParseStats(path, "xlsx")

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, stats, apperrors.FileError(apperrors.CodeFileCorrupted, path, err)
	}

	sheet, err := p.sheet(f, path)
	if err != nil {
		return nil, stats, err
	}

	if len(sheet.Rows) == 0 {
		return nil, stats, apperrors.ParseError(apperrors.CodeEmptyFile, path, 1, "", nil)
	}

	parseCtx.LineNumber = 1
	p.SetHeaders(rowToStrings(sheet.Rows[0]), parseCtx, stats)

	var records []models.Record
	for i, row := range sheet.Rows[1:] {
		if i%cancelCheckInterval == 0 {
			if err := parseCtx.Err(); err != nil {
				return nil, stats, err
			}
		}

		parseCtx.LineNumber = i + 2
		if record, ok := p.BuildRecord(rowToStrings(row), parseCtx, stats); ok {
			records = append(records, record)
		}
	}

	stats.TotalLines = len(sheet.Rows)
	p.logger.WithFields(logger.Fields{
		"file":    path,
		"sheet":   sheet.Name,
		"records": stats.RecordsParsed,
	}).Debug("Parsed XLSX file")

	return records, stats, nil
}

func (p *XLSXParser) sheet(f *xlsx.File, path string) (*xlsx.Sheet, error) {
	if p.config.Sheet != "" {
		sheet, ok := f.Sheet[p.config.Sheet]
		if !ok {
			return nil, apperrors.ParseError(apperrors.CodeSheetNotFound, path, 0, p.config.Sheet, nil)
		}
		return sheet, nil
	}

	if len(f.Sheets) == 0 {
		return nil, apperrors.ParseError(apperrors.CodeEmptyFile, path, 0, "workbook has no sheets", nil)
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}
