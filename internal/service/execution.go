// Package service holds the business logic between the HTTP handlers and
// the executors and run store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/model"
	"github.com/sakif/codeexec/internal/repository"
)

const (
	DefaultMaxCodeLength    = 64 * 1024
	DefaultBatchConcurrency = 4
	DefaultMaxBatchSize     = 32
	DefaultListLimit        = 20
	MaxListLimit            = 100
)

// Limits bounds what callers may submit.
type Limits struct {
	MaxCodeLength    int
	BatchConcurrency int
	MaxBatchSize     int
}

func (l Limits) withDefaults() Limits {
	if l.MaxCodeLength <= 0 {
		l.MaxCodeLength = DefaultMaxCodeLength
	}
	if l.BatchConcurrency <= 0 {
		l.BatchConcurrency = DefaultBatchConcurrency
	}
	if l.MaxBatchSize <= 0 {
		l.MaxBatchSize = DefaultMaxBatchSize
	}
	return l
}

// ExecutorInfo describes a registered executor.
type ExecutorInfo struct {
	Name             string `json:"name"`
	Stateful         bool   `json:"stateful"`
	OptimizeDataFile bool   `json:"optimizeDataFile"`
}

// ExecutionService runs code on named executors and records every run.
type ExecutionService struct {
	registry *executor.Registry
	repo     repository.RunRepository
	limits   Limits
	logger   *slog.Logger
}

func NewExecutionService(registry *executor.Registry, repo repository.RunRepository, limits Limits, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		registry: registry,
		repo:     repo,
		limits:   limits.withDefaults(),
		logger:   logger,
	}
}

// Executors lists the registered executors by name.
func (s *ExecutionService) Executors() []ExecutorInfo {
	names := s.registry.Names()
	infos := make([]ExecutorInfo, 0, len(names))
	for _, name := range names {
		ex, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, ExecutorInfo{
			Name:             name,
			Stateful:         ex.Stateful(),
			OptimizeDataFile: ex.OptimizeDataFile(),
		})
	}
	return infos
}

// Execute runs code on the named executor and stores the outcome.
//
// A failing program is a successful Execute: the returned run carries the
// program's stderr and exit code. Errors are returned for unknown executors,
// oversized code, infrastructure failures and storage failures.
func (s *ExecutionService) Execute(ctx context.Context, executorName, code string) (*model.Run, error) {
	ex, err := s.lookup(executorName)
	if err != nil {
		return nil, err
	}
	if err := s.validateCode("code", code); err != nil {
		return nil, err
	}
	return s.run(ctx, executorName, ex, code)
}

// ExecuteBatch runs each element of codes as an independent execution on the
// named executor, at most Limits.BatchConcurrency at a time. Results keep the
// order of codes. The first infrastructure or storage error cancels the rest.
func (s *ExecutionService) ExecuteBatch(ctx context.Context, executorName string, codes []string) ([]model.Run, error) {
	ex, err := s.lookup(executorName)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, apperror.ValidationFailed("codes", "at least one code snippet is required")
	}
	if len(codes) > s.limits.MaxBatchSize {
		return nil, apperror.ValidationFailed("codes",
			fmt.Sprintf("batch must contain %d snippets or fewer", s.limits.MaxBatchSize))
	}
	for i, code := range codes {
		if err := s.validateCode(fmt.Sprintf("codes[%d]", i), code); err != nil {
			return nil, err
		}
	}

	runs := make([]model.Run, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limits.BatchConcurrency)
	for i, code := range codes {
		g.Go(func() error {
			run, err := s.run(gctx, executorName, ex, code)
			if err != nil {
				return fmt.Errorf("codes[%d]: %w", i, err)
			}
			runs[i] = *run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("batch executed",
		slog.String("executor", executorName),
		slog.Int("size", len(codes)),
	)
	return runs, nil
}

// GetRun returns one recorded run.
func (s *ExecutionService) GetRun(ctx context.Context, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// ListRuns returns recorded runs, newest first, optionally for one executor.
func (s *ExecutionService) ListRuns(ctx context.Context, executorName string, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.repo.List(ctx, repository.ListOptions{
		Limit:    limit,
		Offset:   offset,
		Executor: strings.TrimSpace(executorName),
	})
	if err != nil {
		s.logger.Error("failed to list runs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *ExecutionService) lookup(name string) (executor.Executor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("executor", "executor name is required")
	}
	return s.registry.Get(name)
}

func (s *ExecutionService) validateCode(field, code string) error {
	if len(code) > s.limits.MaxCodeLength {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("code must be %d bytes or less", s.limits.MaxCodeLength))
	}
	return nil
}

// run executes one snippet under its own invocation id and records it.
func (s *ExecutionService) run(ctx context.Context, executorName string, ex executor.Executor, code string) (*model.Run, error) {
	inv, _ := executor.InvocationFromContext(ctx)
	inv.ID = uuid.NewString()
	ctx = executor.WithInvocation(ctx, inv)

	res, err := ex.Execute(ctx, executor.ExecutionRequest{Code: code})
	if err != nil {
		s.logger.Error("execution failed",
			slog.String("executor", executorName),
			slog.String("invocation", inv.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("executing on %s: %w", executorName, err)
	}

	run := &model.Run{
		Executor:     executorName,
		InvocationID: inv.ID,
		Caller:       inv.Caller,
		Code:         code,
		Stdout:       res.Stdout,
		Stderr:       res.Stderr,
		ExitCode:     res.ExitCode,
		TimedOut:     res.TimedOut,
		DurationMS:   res.Duration.Milliseconds(),
	}

	// Record even if the caller went away; the execution already happened.
	if err := s.repo.Create(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record run",
			slog.String("executor", executorName),
			slog.String("invocation", inv.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("recording run: %w", err)
	}

	s.logger.Info("code executed",
		slog.String("run", run.ID),
		slog.String("executor", executorName),
		slog.String("invocation", inv.ID),
		slog.Int("exitCode", run.ExitCode),
		slog.Bool("timedOut", run.TimedOut),
		slog.Int64("durationMs", run.DurationMS),
	)
	return run, nil
}
