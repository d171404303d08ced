// Package local implements the in-process executor.
//
// Code is evaluated by the embedded interpreter inside the host process, in a
// namespace created for that call alone. Nothing beyond the namespace is
// isolated, so this backend must only run code the host already trusts.
package local

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/interp"
)

// Name identifies this backend in errors and logs.
const Name = "LocalExecutor"

// Config holds the configuration for in-process execution.
type Config struct {
	executor.Options
	// Timeout bounds a single evaluation. Zero means no bound.
	Timeout time.Duration
	// MaxSteps bounds the interpreter steps of a single evaluation. Zero means no bound.
	MaxSteps uint64
}

// Executor implements executor.Executor by evaluating code in-process.
// It is safe for concurrent use: output is captured per call, never through a
// shared stream.
type Executor struct {
	config Config
	logger *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// New validates cfg and returns an in-process executor.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Options.Validate(Name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{config: cfg, logger: logger}, nil
}

func (e *Executor) Stateful() bool         { return false }
func (e *Executor) OptimizeDataFile() bool { return false }

// Execute evaluates the request's code. A failure of the code is written to
// Stderr as a full traceback; the only error returned is the caller's own
// context cancellation.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	e.logger.Debug("executing code in-process", slog.String("code", "\n```\n"+req.Code+"\n```"))
	return Evaluate(ctx, req.Code, EvalConfig{
		Timeout:  e.config.Timeout,
		MaxSteps: e.config.MaxSteps,
		Format:   interp.Traceback,
	})
}

// EvalConfig tunes Evaluate.
type EvalConfig struct {
	Timeout  time.Duration
	MaxSteps uint64
	// Format renders a program failure into Stderr.
	Format func(error) string
}

// Evaluate runs code in a fresh namespace and packs the captured output into
// a result. It is shared by every executor that evaluates in-process; they
// differ only in how a failure is rendered.
func Evaluate(ctx context.Context, code string, cfg EvalConfig) (*executor.ExecutionResult, error) {
	start := time.Now()

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	// Each call owns its buffer, so concurrent calls cannot see each other's output.
	var stdout bytes.Buffer
	err := interp.Exec(runCtx, code, &stdout, interp.Config{MaxSteps: cfg.MaxSteps})

	result := executor.NewResult()
	result.Stdout = stdout.String()
	result.Duration = time.Since(start)

	if err == nil {
		return result, nil
	}

	// The caller gave up; there is nobody to report a result to.
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, ctxErr
	}

	result.ExitCode = executor.ExitProgramError
	if runCtx.Err() != nil {
		result.ExitCode = executor.ExitTimeout
		result.TimedOut = true
	}
	format := cfg.Format
	if format == nil {
		format = interp.Traceback
	}
	result.Stderr = format(err)
	return result, nil
}
