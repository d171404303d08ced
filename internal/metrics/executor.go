package metrics

import (
	"context"
	"time"

	"github.com/sakif/codeexec/internal/executor"
)

// instrumented wraps an executor and records every call.
type instrumented struct {
	name  string
	inner executor.Executor
	c     *Collector
}

// Instrument returns ex wrapped so each Execute call is recorded under name.
// The wrapper reports the same flags and results as ex.
func Instrument(name string, ex executor.Executor, c *Collector) executor.Executor {
	return &instrumented{name: name, inner: ex, c: c}
}

// Unwrap returns the wrapped executor.
func (i *instrumented) Unwrap() executor.Executor { return i.inner }

func (i *instrumented) Stateful() bool         { return i.inner.Stateful() }
func (i *instrumented) OptimizeDataFile() bool { return i.inner.OptimizeDataFile() }

func (i *instrumented) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	active := i.c.executionsActive.WithLabelValues(i.name)
	active.Inc()
	defer active.Dec()

	start := time.Now()
	res, err := i.inner.Execute(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		i.c.RecordExecution(i.name, OutcomeError, elapsed, 0, 0)
		return res, err
	}
	i.c.RecordExecution(i.name, outcome(res), elapsed, len(res.Stdout), len(res.Stderr))
	return res, nil
}

func outcome(res *executor.ExecutionResult) string {
	switch {
	case res.TimedOut:
		return OutcomeTimeout
	case res.ExitCode != executor.ExitOK:
		return OutcomeProgramError
	default:
		return OutcomeOK
	}
}
