// Package unsafelocal implements the selectable executor: one executor type
// that evaluates code in-process by default and switches to a child process
// per call when UseIsolatedProcess is set.
package unsafelocal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/executor/isolated"
	"github.com/sakif/codeexec/internal/executor/local"
	"github.com/sakif/codeexec/internal/interp"
)

// Name identifies this backend in errors and logs.
const Name = "UnsafeLocalExecutor"

// Config holds the configuration for the selectable executor.
type Config struct {
	executor.Options
	// UseIsolatedProcess routes every call to a child process.
	UseIsolatedProcess bool
	// Isolated configures the child-process delegate. Its Options are
	// ignored; the façade's own Options apply.
	Isolated isolated.Config
	// Timeout and MaxSteps bound in-process evaluation.
	Timeout  time.Duration
	MaxSteps uint64
}

// Executor implements executor.Executor.
//
// In-process failures are reported with their short message only, unlike
// local.Executor which writes the full traceback.
type Executor struct {
	config   Config
	isolated *isolated.Executor // owned; nil unless UseIsolatedProcess
	logger   *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// New validates cfg and, when isolation is requested, builds the child-process
// delegate right away so a bad interpreter setting fails here and not on the
// first call.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Options.Validate(Name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{config: cfg, logger: logger}
	if cfg.UseIsolatedProcess {
		isoCfg := cfg.Isolated
		isoCfg.Options = executor.Options{}
		iso, err := isolated.New(isoCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: building isolated delegate: %w", Name, err)
		}
		e.isolated = iso
	}
	return e, nil
}

func (e *Executor) Stateful() bool         { return false }
func (e *Executor) OptimizeDataFile() bool { return false }

// UseIsolatedProcess reports which path Execute takes.
func (e *Executor) UseIsolatedProcess() bool { return e.isolated != nil }

// Execute runs the request's code in-process, or in a child process when the
// executor was built with UseIsolatedProcess.
//
// In-process, a failing program yields ExitCode 1 and only the error message
// on Stderr, without a traceback. The isolated path returns whatever the
// child wrote, which includes the traceback.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if e.isolated != nil {
		return e.isolated.Execute(ctx, req)
	}

	e.logger.Debug("executing code", slog.String("code", "\n```\n"+req.Code+"\n```"))
	return local.Evaluate(ctx, req.Code, local.EvalConfig{
		Timeout:  e.config.Timeout,
		MaxSteps: e.config.MaxSteps,
		Format:   interp.Message,
	})
}
