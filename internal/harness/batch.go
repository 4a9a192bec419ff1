package harness

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/goldrun/internal/task"
)

// BatchOptions tunes a batch run.
type BatchOptions struct {
	FailFast bool
	OnUpdate func(name string, result *task.CaseResult)
}

// Batch executes cases in order through one Executor and aggregates the
// outcome into a task.BatchReport.
type Batch struct {
	RunID string

	sched *task.Scheduler
}

// NewBatch prepares a batch. Case names must be unique.
func NewBatch(cases []task.Case, x *Executor, opts BatchOptions) (*Batch, error) {
	sched, err := task.NewScheduler(cases, task.SchedulerConfig{
		ExecFn:   x.Execute,
		FailFast: opts.FailFast,
		OnUpdate: opts.OnUpdate,
	})
	if err != nil {
		return nil, err
	}
	return &Batch{RunID: uuid.NewString(), sched: sched}, nil
}

// Results returns a snapshot of the case results so far.
func (b *Batch) Results() []*task.CaseResult {
	return b.sched.Results()
}

// Run executes every case. The report is always returned; the error is
// the fatal condition that stopped the batch early, if any.
func (b *Batch) Run(ctx context.Context) (*task.BatchReport, error) {
	start := time.Now()
	results, err := b.sched.Run(ctx)

	report := &task.BatchReport{
		RunID:         b.RunID,
		Timestamp:     start,
		Results:       results,
		TotalDuration: time.Since(start),
	}
	if err != nil {
		report.Aborted = err.Error()
	}
	report.Tally()
	return report, err
}
