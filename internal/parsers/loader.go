package parsers

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"
)

// SupportedExtensions lists the file extensions Load accepts
var SupportedExtensions = []string{".csv", ".txt", ".xlsx"}

// Loader picks a parser by file extension
type Loader struct {
	config *Config
	csv    *CSVParser
	xlsx   *XLSXParser
	logger logger.Logger
}

// NewLoader creates a loader. A nil config uses DefaultConfig.
func NewLoader(config *Config) (*Loader, error) {
	if config == nil {
		config = DefaultConfig()
	}

	csvParser, err := NewCSVParser(config)
	if err != nil {
		return nil, err
	}
	xlsxParser, err := NewXLSXParser(config)
	if err != nil {
		return nil, err
	}

	return &Loader{
		config: config,
		csv:    csvParser,
		xlsx:   xlsxParser,
		logger: logger.GetGlobalLogger().WithComponent("loader"),
	}, nil
}

// Load reads every record from the file at path
func (l *Loader) Load(ctx context.Context, path string) ([]models.Record, *ParseStats, error) {
	op := logger.NewOperationLogger("load_file", l.logger.WithField("file", path))

	info, err := os.Stat(path)
	if err != nil {
		appErr := statError(path, err)
		op.Error(appErr, "Cannot access input file")
		return nil, nil, appErr
	}
	if info.IsDir() {
		return nil, nil, apperrors.FileError(apperrors.CodeUnsupportedExt, path, errors.New("path is a directory"))
	}

	parseCtx := NewParseContext(ctx)

	var (
		records []models.Record
		stats   *ParseStats
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		records, stats, err = l.loadCSV(parseCtx, path)
	case ".xlsx":
		records, stats, err = l.xlsx.ParseFile(parseCtx, path)
	default:
		return nil, nil, apperrors.FileError(apperrors.CodeUnsupportedExt, path, nil).
			WithContext("extension", ext)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			err = apperrors.PipelineError(apperrors.CodeCancelled, "load", ctxErr)
		}
		op.Error(err, "Failed to load file")
		return nil, stats, err
	}

	for _, w := range stats.GetSampleWarnings(5) {
		op.Warning(w)
	}
	op.WithField("records", stats.RecordsParsed).
		WithField("warnings", len(stats.Warnings)).
		Success("Loaded file")

	return records, stats, nil
}

func (l *Loader) loadCSV(parseCtx *ParseContext, path string) ([]models.Record, *ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, statError(path, err)
	}
	defer f.Close()

	return l.csv.Parse(parseCtx, f, path)
}

// statError maps file system errors to application errors
func statError(path string, err error) *apperrors.AppError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperrors.FileError(apperrors.CodeFileNotFound, path, err)
	case errors.Is(err, fs.ErrPermission):
		return apperrors.FileError(apperrors.CodeFilePermission, path, err)
	default:
		return apperrors.FileError(apperrors.CodeFileCorrupted, path, err)
	}
}
