package app

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/cpptasks/internal/integration/task"
	"github.com/dshills/cpptasks/internal/integration/task/detect"
	"github.com/dshills/cpptasks/internal/project/workspace"
)

// reportingComputer reports failures of the wrapped computer and records
// metrics. Results and errors pass through unchanged.
type reportingComputer struct {
	next     detect.TaskComputer
	reporter *Reporter
	metrics  *Metrics
}

func newReportingComputer(next detect.TaskComputer, reporter *Reporter, metrics *Metrics) *reportingComputer {
	return &reportingComputer{next: next, reporter: reporter, metrics: metrics}
}

func (c *reportingComputer) ComputeTasks(ctx context.Context, folder workspace.Folder) ([]*task.Task, error) {
	start := time.Now()
	tasks, err := c.next.ComputeTasks(ctx, folder)
	c.metrics.RecordCompute(time.Since(start), len(tasks), err)

	// Cancellation is not a detection problem.
	if err != nil && !errors.Is(err, context.Canceled) {
		c.reporter.ReportError(folder.Name, err)
	}
	return tasks, err
}
