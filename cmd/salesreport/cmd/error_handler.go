package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	var summary *apperrors.ErrorSummary
	if errors.As(err, &summary) {
		return h.handleErrorSummary(summary)
	}

	if appErr, ok := apperrors.AsAppError(err); ok {
		return h.handleAppError(appErr)
	}
	return h.handleGenericError(err)
}

// handleAppError prints the message, context and suggestion of err
func (h *CLIErrorHandler) handleAppError(err *apperrors.AppError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := categoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleErrorSummary lists sample errors of a multi-file failure and the
// help of every category involved
func (h *CLIErrorHandler) handleErrorSummary(summary *apperrors.ErrorSummary) int {
	fmt.Fprintf(h.out, "Error: %s\n\n", summary.Error())
	for _, err := range summary.SampleErrors {
		fmt.Fprintf(h.out, "  - %s\n", err.Error())
	}
	if more := summary.Total - len(summary.SampleErrors); more > 0 {
		fmt.Fprintf(h.out, "  ... and %d more\n", more)
	}

	for _, category := range summaryCategories {
		if !summary.HasCategory(category) {
			continue
		}
		if help := categoryHelp(category); help != "" {
			fmt.Fprintf(h.out, "\n%s\n", help)
		}
	}

	return summary.GetExitCode()
}

// summaryCategories orders the help blocks of an error summary
var summaryCategories = []apperrors.ErrorCategory{
	apperrors.CategoryFile,
	apperrors.CategoryParse,
	apperrors.CategoryValidation,
	apperrors.CategoryConfiguration,
	apperrors.CategoryPipeline,
	apperrors.CategoryExport,
}

// handleGenericError handles errors raised outside the application
// packages, mostly cobra flag parsing
func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case errors.Is(err, os.ErrPermission):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case errors.Is(err, syscall.ENOSPC):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 6
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if strings.Contains(err.Error(), "flag") {
		fmt.Fprintf(h.out, "Run 'salesreport --help' for usage.\n")
	}
	return 1
}

// categoryHelp returns category-specific help text
func categoryHelp(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Order and catalog files must be .csv, .txt or .xlsx`

	case apperrors.CategoryParse:
		return `Parse error help:
• The first row must hold the column headers
• Try --encoding gbk for CSV files saved by Excel on Chinese Windows
• Use --sheet to pick the XLSX sheet holding the data`

	case apperrors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and salesreport.yaml
• Run 'salesreport aliases' to list the column alias fields
• Use 'salesreport report --help' to see all available options`

	case apperrors.CategoryPipeline:
		return `Pipeline error help:
• A cost catalog is required with --products
• Interrupted runs produce no report; run the command again`

	case apperrors.CategoryExport:
		return `Export error help:
• Check that the output directory is writable
• Close the report file if a spreadsheet program holds it open`

	default:
		return ""
	}
}
