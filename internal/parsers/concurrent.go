package parsers

import (
	"context"

	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentFiles bounds how many files LoadAll reads at once
const DefaultMaxConcurrentFiles = 4

// LoadResult holds the records loaded from one file
type LoadResult struct {
	Path    string
	Records []models.Record
	Stats   *ParseStats
}

// LoadAll loads several files concurrently. Results keep the order of
// paths. Every file is attempted; a single failure is returned as is and
// several are returned together as an *apperrors.ErrorSummary.
func (l *Loader) LoadAll(ctx context.Context, maxConcurrent int, paths ...string) ([]*LoadResult, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFiles
	}

	results := make([]*LoadResult, len(paths))
	failures := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			records, stats, err := l.Load(ctx, path)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = &LoadResult{Path: path, Records: records, Stats: stats}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.PipelineError(apperrors.CodeCancelled, "load", err)
	}

	var errs []*apperrors.AppError
	for i, err := range failures {
		if err != nil {
			errs = append(errs, apperrors.WrapIfNeeded(err, apperrors.CategoryFile, apperrors.CodeFileCorrupted,
				"failed to load "+paths[i]))
		}
	}
	switch len(errs) {
	case 0:
		return results, nil
	case 1:
		return nil, errs[0]
	default:
		return nil, apperrors.NewErrorSummary(errs)
	}
}

// Concat joins the records of several results in order
func Concat(results []*LoadResult) []models.Record {
	total := 0
	for _, r := range results {
		total += len(r.Records)
	}

	records := make([]models.Record, 0, total)
	for _, r := range results {
		records = append(records, r.Records...)
	}
	return records
}
