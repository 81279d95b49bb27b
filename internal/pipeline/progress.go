package pipeline

import (
	"sync"
	"time"
)

// Step names reported to progress callbacks
const (
	StepLoad      = "load"
	StepFilter    = "filter"
	StepMatch     = "match"
	StepAggregate = "aggregate"
	StepCompleted = "completed"
)

// Progress tracks the progress of one report run
type Progress struct {
	RunID              string        `json:"run_id"`
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// Step-specific progress
	RecordsProcessed int `json:"records_processed"`
	TotalRecords     int `json:"total_records"`
}

// ProgressCallback is called to report run progress. Callbacks receive a
// copy and run on the goroutine executing the pipeline.
type ProgressCallback func(Progress)

// progressReporter holds the progress of a single run
type progressReporter struct {
	mu        sync.Mutex
	progress  Progress
	callbacks []ProgressCallback
}

func newProgressReporter(runID string, totalSteps int, callbacks []ProgressCallback) *progressReporter {
	return &progressReporter{
		progress: Progress{
			RunID:      runID,
			TotalSteps: totalSteps,
			StartTime:  time.Now(),
		},
		callbacks: callbacks,
	}
}

// step marks the start of a step after completed steps have finished
func (pr *progressReporter) step(name string, completed, totalRecords int) {
	pr.mu.Lock()
	pr.progress.CurrentStep = name
	pr.progress.CompletedSteps = completed
	pr.progress.RecordsProcessed = 0
	pr.progress.TotalRecords = totalRecords
	snapshot := pr.updateLocked()
	pr.mu.Unlock()

	pr.notify(snapshot)
}

// records reports rows processed within the current step
func (pr *progressReporter) records(processed int) {
	pr.mu.Lock()
	pr.progress.RecordsProcessed = processed
	snapshot := pr.updateLocked()
	pr.mu.Unlock()

	pr.notify(snapshot)
}

func (pr *progressReporter) updateLocked() Progress {
	p := &pr.progress
	p.ElapsedTime = time.Since(p.StartTime)
	p.PercentComplete = float64(p.CompletedSteps) / float64(p.TotalSteps) * 100

	if p.CompletedSteps > 0 && p.CompletedSteps < p.TotalSteps {
		avgTimePerStep := p.ElapsedTime / time.Duration(p.CompletedSteps)
		p.EstimatedRemaining = avgTimePerStep * time.Duration(p.TotalSteps-p.CompletedSteps)
	} else if p.CompletedSteps >= p.TotalSteps {
		p.EstimatedRemaining = 0
	}

	return *p
}

func (pr *progressReporter) notify(p Progress) {
	for _, callback := range pr.callbacks {
		callback(p)
	}
}
