package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// cancelCheckInterval is the number of rows read between context checks
const cancelCheckInterval = 1000

// CSVParser reads delimited text files
type CSVParser struct {
	*BaseParser
}

// NewCSVParser creates a CSV parser
func NewCSVParser(config *Config) (*CSVParser, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "input", config.Encoding, err)
	}
	return &CSVParser{BaseParser: NewBaseParser(config)}, nil
}

// Parse reads all records from r. name is used in statistics and errors.
func (p *CSVParser) Parse(parseCtx *ParseContext, r io.Reader, name string) ([]models.Record, *ParseStats, error) {
	stats := NewParseStats(name, "csv")

	decoded, encodingName, err := p.decode(r)
	if err != nil {
		return nil, stats, apperrors.ParseError(apperrors.CodeEncodingError, name, 0, err.Error(), err)
	}
	stats.Encoding = encodingName

	reader := csv.NewReader(decoded)
	reader.Comma = p.config.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, apperrors.ParseError(apperrors.CodeEmptyFile, name, 1, "", nil)
		}
		return nil, stats, apperrors.ParseError(apperrors.CodeInvalidFormat, name, 1, "header row", err)
	}
	parseCtx.LineNumber = 1
	p.SetHeaders(header, parseCtx, stats)

	var records []models.Record
	for {
		if parseCtx.LineNumber%cancelCheckInterval == 0 {
			if err := parseCtx.Err(); err != nil {
				return nil, stats, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := parseCtx.LineNumber + 1
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, stats, apperrors.ParseError(apperrors.CodeInvalidFormat, name, line, err.Error(), err)
		}

		parseCtx.LineNumber, _ = reader.FieldPos(0)
		if record, ok := p.BuildRecord(row, parseCtx, stats); ok {
			records = append(records, record)
		}
	}

	if err := parseCtx.Err(); err != nil {
		return nil, stats, err
	}

	stats.TotalLines = parseCtx.LineNumber
	p.logger.WithFields(logger.Fields{
		"file":     name,
		"encoding": encodingName,
		"records":  stats.RecordsParsed,
	}).Debug("Parsed CSV file")

	return records, stats, nil
}

// decode wraps r with the configured decoder. In auto mode a UTF-8 BOM is
// skipped and a sample that is not valid UTF-8 switches to GB18030.
func (p *CSVParser) decode(r io.Reader) (io.Reader, string, error) {
	enc, err := p.config.encoding()
	if err != nil {
		return nil, "", err
	}
	if enc != nil {
		return transform.NewReader(r, enc.NewDecoder()), p.config.Encoding, nil
	}

	br := bufio.NewReaderSize(r, p.config.SampleBytes)
	sample, err := br.Peek(p.config.SampleBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, "", err
	}

	if bytes.HasPrefix(sample, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, "", err
		}
		return br, "utf-8", nil
	}

	if validUTF8Prefix(sample) {
		return br, "utf-8", nil
	}

	return transform.NewReader(br, simplifiedchinese.GB18030.NewDecoder()), "gb18030", nil
}

// validUTF8Prefix reports whether b is valid UTF-8, allowing a multi-byte
// sequence cut off at the end of the sample.
func validUTF8Prefix(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			return !utf8.FullRune(b)
		}
		b = b[size:]
	}
	return true
}
