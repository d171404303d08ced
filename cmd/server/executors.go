package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/config"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/executor/docker"
	"github.com/sakif/codeexec/internal/executor/isolated"
	"github.com/sakif/codeexec/internal/executor/local"
	"github.com/sakif/codeexec/internal/executor/unsafelocal"
	"github.com/sakif/codeexec/internal/metrics"
)

// buildExecutors constructs every configured executor, instruments it and
// registers it by name. A Docker executor whose daemon is unreachable is
// skipped with a warning so the process backends stay available; any other
// construction error is fatal. The returned func releases executors that
// hold resources.
func buildExecutors(cfgs []config.ExecutorConfig, collector *metrics.Collector, logger *slog.Logger) (*executor.Registry, func(), error) {
	registry := executor.NewRegistry()
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close executor", slog.String("error", err.Error()))
			}
		}
	}

	for _, c := range cfgs {
		ex, err := newExecutor(c, logger)
		if err != nil {
			if c.Kind == config.KindDocker && !errors.Is(err, apperror.ErrConfiguration) {
				logger.Warn("docker executor unavailable, skipping",
					slog.String("name", c.Name),
					slog.String("error", err.Error()),
				)
				continue
			}
			closeAll()
			return nil, nil, fmt.Errorf("executor %q: %w", c.Name, err)
		}
		if cl, ok := ex.(io.Closer); ok {
			closers = append(closers, cl)
		}

		if collector != nil {
			ex = metrics.Instrument(c.Name, ex, collector)
		}
		if err := registry.Register(c.Name, ex); err != nil {
			closeAll()
			return nil, nil, err
		}
		logger.Info("executor ready", slog.String("name", c.Name), slog.String("kind", c.Kind))
	}

	return registry, closeAll, nil
}

func newExecutor(c config.ExecutorConfig, logger *slog.Logger) (executor.Executor, error) {
	opts := executor.Options{Stateful: c.Stateful, OptimizeDataFile: c.OptimizeDataFile}
	logger = logger.With(slog.String("executor", c.Name))

	switch c.Kind {
	case config.KindLocal:
		return local.New(local.Config{
			Options:  opts,
			Timeout:  c.Timeout,
			MaxSteps: c.MaxSteps,
		}, logger)

	case config.KindIsolated:
		return isolated.New(isolatedConfig(c, opts), logger)

	case config.KindUnsafeLocal:
		return unsafelocal.New(unsafelocal.Config{
			Options:            opts,
			UseIsolatedProcess: c.UseIsolatedProcess,
			Isolated:           isolatedConfig(c, executor.Options{}),
			Timeout:            c.Timeout,
			MaxSteps:           c.MaxSteps,
		}, logger)

	case config.KindDocker:
		return docker.New(docker.Config{
			Options:     opts,
			Image:       c.Image,
			Command:     c.Command,
			MemoryLimit: c.MemoryLimit,
			CPULimit:    c.CPULimit,
			Timeout:     c.Timeout,
			PoolSize:    c.PoolSize,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown executor kind %q", c.Kind)
	}
}

func isolatedConfig(c config.ExecutorConfig, opts executor.Options) isolated.Config {
	return isolated.Config{
		Options:     opts,
		Interpreter: c.Interpreter,
		Args:        c.Args,
		Env:         c.Env,
		Dir:         c.Dir,
		Timeout:     c.Timeout,
	}
}
