package txcoord

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner is a thin wrapper over errgroup used to fan out a bounded number
// of concurrent per-application garbage-collector sweeps.
type TaskRunner struct {
	eg      *errgroup.Group
	context context.Context
}

// Create a new task runner. maxThreadCount specifies threads limit, -1 or 0 means no limit.
func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	eg, ctx2 := errgroup.WithContext(ctx)
	if maxThreadCount > 0 {
		eg.SetLimit(maxThreadCount)
	}
	return &TaskRunner{
		eg:      eg,
		context: ctx2,
	}
}

// GetContext returns the errgroup-derived context, canceled as soon as any task returns an error.
func (tr *TaskRunner) GetContext() context.Context {
	return tr.context
}

// Spin up a new go thread to run a task function.
func (tr *TaskRunner) Go(task func() error) {
	tr.eg.Go(task)
}

// Wrapper to errgroup.Wait.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
