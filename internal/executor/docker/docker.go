// Package docker implements an executor that runs code inside pre-warmed
// Docker containers. Unlike the process backends it does restrict the code:
// no network, a read-only root filesystem, memory and CPU limits.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/codeexec/internal/apperror"
	"github.com/sakif/codeexec/internal/executor"
)

// Name identifies this backend in errors and logs.
const Name = "DockerExecutor"

// Executor implements the executor.Executor interface using Docker.
type Executor struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Executor = (*Executor)(nil)

// New validates cfg, connects to the daemon, pulls the image and starts the
// container pool.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Options.Validate(Name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperror.Infrastructure(Name, fmt.Errorf("creating docker client: %w", err))
	}

	// Make sure the image is pulled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, apperror.Infrastructure(Name, fmt.Errorf("pulling image %s: %w", cfg.Image, err))
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		cli.Close()
		return nil, apperror.Infrastructure(Name, fmt.Errorf("pulling image %s: %w", cfg.Image, err))
	}
	logger.Info("docker image is ready", slog.String("image", cfg.Image))

	e := &Executor{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	e.pool = NewPool(cli, cfg, logger)
	e.pool.Start()

	return e, nil
}

// Close shuts down the executor pool and docker client.
func (e *Executor) Close() error {
	e.pool.Stop()
	return e.cli.Close()
}

func (e *Executor) Stateful() bool         { return false }
func (e *Executor) OptimizeDataFile() bool { return false }

// Execute runs the provided code in a pooled container. Each container
// serves exactly one call and is removed afterwards.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	start := time.Now()

	e.logger.Debug("executing code in container",
		slog.String("image", e.config.Image),
		slog.String("code", "\n```\n"+req.Code+"\n```"),
	)

	containerID, err := e.pool.GetContainer(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := e.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{
			Force: true,
		})
		if err != nil {
			e.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	executeCtx, executeCancel := context.WithTimeout(ctx, e.config.Timeout)
	defer executeCancel()

	execResp, err := e.cli.ContainerExecCreate(executeCtx, containerID, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          e.config.command(req.Code),
	})
	if err != nil {
		return nil, apperror.Infrastructure(Name, fmt.Errorf("creating exec: %w", err))
	}

	attachResp, err := e.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, apperror.Infrastructure(Name, fmt.Errorf("attaching to exec: %w", err))
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan struct{})
	go func() {
		// Docker multiplexes both streams over one connection.
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	result := executor.NewResult()

	select {
	case <-done:
		inspectResp, err := e.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return nil, apperror.Infrastructure(Name, fmt.Errorf("inspecting exec: %w", err))
		}
		result.ExitCode = inspectResp.ExitCode
	case <-executeCtx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ctxErr
		}
		// Closing the connection unblocks StdCopy; the buffers are safe to
		// read once it returns.
		attachResp.Close()
		<-done
		e.logger.Warn("container execution timed out",
			slog.String("id", containerID),
			slog.Duration("timeout", e.config.Timeout),
		)
		result.TimedOut = true
		result.ExitCode = executor.ExitTimeout
		stderr.WriteString("\nExecution timed out.\n")
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(start)
	return result, nil
}
