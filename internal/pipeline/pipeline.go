// Package pipeline runs the sales report: filter, match, then aggregate.
//
// Each stage consumes the full output of the previous one. Orders are
// processed in batches of Config.BatchSize with the context checked between
// batches, so a long run can be cancelled; a cancelled run returns an error
// and never a partial result. The batch size does not affect the output.
//
// Example usage:
//
//	service, err := pipeline.NewService(pipeline.DefaultConfig())
//	service.AddProgressCallback(func(p pipeline.Progress) {
//		fmt.Printf("%.0f%% %s\n", p.PercentComplete, p.CurrentStep)
//	})
//	result, err := service.RunFiles(ctx, &pipeline.Request{
//		OrderFiles:  []string{"orders.csv"},
//		ProductFile: "products.xlsx",
//	})
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graymonk/taobao-reconciliation-new/internal/aggregator"
	"github.com/graymonk/taobao-reconciliation-new/internal/filter"
	"github.com/graymonk/taobao-reconciliation-new/internal/matcher"
	"github.com/graymonk/taobao-reconciliation-new/internal/models"
	"github.com/graymonk/taobao-reconciliation-new/internal/parsers"
	apperrors "github.com/graymonk/taobao-reconciliation-new/pkg/errors"
	"github.com/graymonk/taobao-reconciliation-new/pkg/logger"

	"github.com/google/uuid"
)

// maxInputWarnings limits the parser warnings copied per input file
const maxInputWarnings = 10

// Service runs report pipelines with a fixed configuration. A Service may
// be used by several goroutines; runs share no state.
type Service struct {
	config *Config
	logger logger.Logger

	callbacksMu sync.RWMutex
	callbacks   []ProgressCallback
}

// Request names the files of a report run
type Request struct {
	OrderFiles  []string `json:"order_files"`
	ProductFile string   `json:"product_file"`
}

// Validate validates the request
func (r *Request) Validate() error {
	if r == nil || len(r.OrderFiles) == 0 {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "orders", nil, nil)
	}
	for _, path := range r.OrderFiles {
		if path == "" {
			return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "orders", path,
				fmt.Errorf("order file path cannot be empty"))
		}
	}
	if r.ProductFile == "" {
		return apperrors.PipelineError(apperrors.CodeProductsMissing, StepLoad, nil)
	}
	return nil
}

// Result contains the complete output of one run
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Inputs holds parse statistics when the run loaded files
	Inputs []*parsers.ParseStats `json:"inputs,omitempty"`

	Filter     *filter.Result                    `json:"filter"`
	Match      *matcher.MatchResult              `json:"match"`
	Duplicates *matcher.DuplicateDetectionResult `json:"duplicates"`
	Report     *aggregator.Report                `json:"report"`

	// Warnings merges the diagnostics of every stage in stage order
	Warnings []string `json:"warnings,omitempty"`

	StageDurations map[string]time.Duration `json:"stage_durations"`
}

// Duration returns the wall time of the run
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewService creates a pipeline service. A nil config uses DefaultConfig.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "pipeline", nil, err)
	}

	return &Service{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// AddProgressCallback adds a progress callback function
func (s *Service) AddProgressCallback(callback ProgressCallback) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

func (s *Service) progressCallbacks() []ProgressCallback {
	s.callbacksMu.RLock()
	defer s.callbacksMu.RUnlock()
	return append([]ProgressCallback(nil), s.callbacks...)
}

// Run filters orders, matches the kept ones against products and aggregates
// the result.
func (s *Service) Run(ctx context.Context, orders, products []models.Record) (*Result, error) {
	runID := uuid.NewString()
	progress := newProgressReporter(runID, 3, s.progressCallbacks())
	result := newResult(runID)

	if err := s.run(ctx, result, progress, 0, orders, products); err != nil {
		return nil, err
	}
	return result, nil
}

// RunFiles loads the order files and the product catalog, then runs the
// pipeline. Order files are loaded concurrently and concatenated in the
// order given.
func (s *Service) RunFiles(ctx context.Context, request *Request) (*Result, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	progress := newProgressReporter(runID, 4, s.progressCallbacks())
	result := newResult(runID)
	log := s.logger.WithField("run_id", runID)

	paths := make([]string, 0, len(request.OrderFiles)+1)
	paths = append(paths, request.OrderFiles...)
	paths = append(paths, request.ProductFile)

	progress.step(StepLoad, 0, len(paths))

	loader, err := parsers.NewLoader(s.config.Input)
	if err != nil {
		return nil, err
	}

	var loaded []*parsers.LoadResult
	elapsed, err := logger.TimedOperation("load_files", log, func() error {
		var err error
		loaded, err = loader.LoadAll(ctx, s.config.MaxConcurrentFiles, paths...)
		return err
	})
	if err != nil {
		return nil, err
	}

	orderFiles, productFile := loaded[:len(loaded)-1], loaded[len(loaded)-1]
	for _, l := range loaded {
		result.Inputs = append(result.Inputs, l.Stats)
		result.Warnings = append(result.Warnings, l.Stats.GetSampleWarnings(maxInputWarnings)...)
	}
	progress.records(len(paths))
	result.StageDurations[StepLoad] = elapsed

	orders := parsers.Concat(orderFiles)
	log.WithFields(logger.Fields{
		"order_files": len(orderFiles),
		"orders":      len(orders),
		"products":    len(productFile.Records),
	}).Info("Loaded input files")

	if err := s.run(ctx, result, progress, 1, orders, productFile.Records); err != nil {
		return nil, err
	}
	return result, nil
}

func newResult(runID string) *Result {
	return &Result{
		RunID:          runID,
		StartedAt:      time.Now(),
		StageDurations: make(map[string]time.Duration),
	}
}

// run executes the filter, match and aggregate stages. done is the number of
// steps completed before the first stage.
func (s *Service) run(ctx context.Context, result *Result, progress *progressReporter, done int, orders, products []models.Record) error {
	log := s.logger.WithField("run_id", result.RunID)
	log.WithFields(logger.Fields{
		"orders":   len(orders),
		"products": len(products),
	}).Info("Starting report run")

	// Stage 1: filter
	progress.step(StepFilter, done, len(orders))

	var filterResult *filter.Result
	elapsed, err := logger.TimedOperation("filter_orders", log, func() error {
		var err error
		filterResult, err = s.filter(ctx, progress, log, orders)
		return err
	})
	if err != nil {
		return err
	}
	result.Filter = filterResult
	result.Warnings = append(result.Warnings, filterResult.Warnings...)
	result.StageDurations[StepFilter] = elapsed

	log.WithFields(logger.Fields{
		"kept":     filterResult.Stats.Kept,
		"excluded": filterResult.Stats.Excluded,
	}).Info("Filtered orders")

	// Stage 2: match
	progress.step(StepMatch, done+1, len(filterResult.Kept))

	engine := matcher.NewMatchingEngine(s.config.Matching.Clone()).
		WithAliases(s.config.orderAliases(), s.config.productAliases())
	engine.BatchSize = s.config.BatchSize
	if err := engine.ValidateConfiguration(); err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "matching", nil, err)
	}

	var matchResult *matcher.MatchResult
	elapsed, err = logger.TimedOperation("match_orders", log, func() error {
		engine.LoadProducts(products)
		var err error
		matchResult, err = engine.Match(ctx, filterResult.Kept)
		return err
	})
	if err != nil {
		return cancelled(StepMatch, err)
	}
	progress.records(len(filterResult.Kept))
	result.Match = matchResult
	result.Duplicates = engine.Duplicates()
	result.Warnings = append(result.Warnings, matchResult.Warnings...)
	result.StageDurations[StepMatch] = elapsed

	log.WithFields(logger.Fields{
		"matched":    matchResult.Stats.Matched,
		"unmatched":  matchResult.Stats.Unmatched,
		"match_rate": matchResult.Stats.MatchRate,
	}).Info("Matched orders")

	// Stage 3: aggregate
	if err := ctx.Err(); err != nil {
		return cancelled(StepAggregate, err)
	}
	progress.step(StepAggregate, done+2, len(matchResult.Orders))

	agg, err := aggregator.New(s.config.Aggregation)
	if err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "aggregation", nil, err)
	}
	result.StageDurations[StepAggregate], _ = logger.TimedOperation("aggregate_orders", log, func() error {
		result.Report = agg.Aggregate(matchResult.Orders)
		return nil
	})

	if err := ctx.Err(); err != nil {
		return cancelled(StepAggregate, err)
	}

	result.FinishedAt = time.Now()
	progress.step(StepCompleted, done+3, 0)

	log.WithFields(logger.Fields{
		"revenue":  result.Report.Totals.TotalRevenue.StringFixed(2),
		"profit":   result.Report.Totals.TotalProfit.StringFixed(2),
		"warnings": len(result.Warnings),
		"duration": result.Duration().String(),
	}).Info("Report run completed")

	return nil
}

// filter evaluates orders in batches, checking ctx between batches
func (s *Service) filter(ctx context.Context, progress *progressReporter, log logger.Logger, orders []models.Record) (*filter.Result, error) {
	config := *s.config.Filter
	config.Aliases = s.config.orderAliases()

	f, err := filter.New(&config)
	if err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "filter", nil, err)
	}

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "filter_orders",
		Total:     int64(len(orders)),
		Logger:    log,
	})

	annotated := make([]filter.Annotated, 0, len(orders))
	for start := 0; start < len(orders); start += s.config.BatchSize {
		if err := ctx.Err(); err != nil {
			tracker.CompleteWithError(err)
			return nil, cancelled(StepFilter, err)
		}

		end := min(start+s.config.BatchSize, len(orders))
		for _, order := range orders[start:end] {
			annotated = append(annotated, f.Evaluate(order))
		}
		tracker.Add(int64(end - start))
		progress.records(end)
	}

	if err := ctx.Err(); err != nil {
		tracker.CompleteWithError(err)
		return nil, cancelled(StepFilter, err)
	}
	tracker.Complete()

	return f.Summarize(annotated), nil
}

func cancelled(stage string, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	return apperrors.PipelineError(apperrors.CodeCancelled, stage, err)
}
