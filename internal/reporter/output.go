package reporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/graymonk/taobao-reconciliation-new/internal/pipeline"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"
)

// DefaultFileName returns the report file name used when no file is given,
// e.g. 销售报告_2024-03-01.xlsx
func DefaultFileName(format OutputFormat, now time.Time) string {
	return fmt.Sprintf("销售报告_%s.%s", now.Format("2006-01-02"), format.Extension())
}

// ResolveOutputPath decides where a report goes. An empty path means stdout
// except for xlsx, which always needs a file. A directory, or a path ending
// in a separator, receives the default file name.
func ResolveOutputPath(path string, format OutputFormat, now time.Time) string {
	if path == "" {
		if format == FormatXLSX {
			return DefaultFileName(format, now)
		}
		return ""
	}

	if strings.HasSuffix(path, string(os.PathSeparator)) || strings.HasSuffix(path, "/") {
		return filepath.Join(path, DefaultFileName(format, now))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultFileName(format, now))
	}
	return path
}

// WriteReport renders result into the file at path and returns the path the
// report was finally written to. The report is written to a temporary file
// first so a failed run never leaves a truncated report behind. When the
// target cannot be replaced, the report is kept next to it under a backup
// name.
func (rg *ReportGenerator) WriteReport(result *pipeline.Result, path string) (string, error) {
	op := logger.NewOperationLogger("write_report", rg.logger).
		WithField("path", path).
		WithField("format", rg.config.Format)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		op.Error(err, "Failed to create report directory")
		return "", apperrors.ExportError(apperrors.CodeWriteFailed, path, err).
			WithSuggestion("check that the output directory is writable")
	}

	tmp, err := os.CreateTemp(dir, ".salesreport-*")
	if err != nil {
		op.Error(err, "Failed to create temporary report file")
		return "", apperrors.ExportError(apperrors.CodeWriteFailed, path, err).
			WithSuggestion("check that the output directory is writable")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	op.Step("render")
	if err := rg.GenerateReport(result, tmp); err != nil {
		tmp.Close()
		op.Error(err, "Failed to render report")
		return "", err
	}
	if err := tmp.Close(); err != nil {
		op.Error(err, "Failed to flush report file")
		return "", apperrors.ExportError(apperrors.CodeWriteFailed, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		op.Warning("Could not set report file permissions")
	}

	op.Step("rename")
	target := path
	if err := os.Rename(tmpPath, target); err != nil {
		target = backupPath(path)
		op.WithField("backup_file", target).Warning("Could not replace report file, writing backup")
		if backupErr := os.Rename(tmpPath, target); backupErr != nil {
			op.Error(backupErr, "Failed to write report")
			return "", apperrors.ExportError(apperrors.CodeWriteFailed, path,
				fmt.Errorf("primary=%v, backup=%w", err, backupErr))
		}
	}

	op.WithField("output", target).Success("Report written")
	return target, nil
}

// backupPath returns name_backup.ext next to the original path
func backupPath(original string) string {
	dir := filepath.Dir(original)
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]

	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}
