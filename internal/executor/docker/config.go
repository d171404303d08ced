package docker

import (
	"time"

	"github.com/sakif/codeexec/internal/executor"
)

// Config holds the configuration for Docker execution.
type Config struct {
	executor.Options
	// Image is the Docker image to use for execution.
	Image string
	// Command is run inside the container with the source appended as the
	// last argument.
	Command []string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides sensible defaults for a Python container.
func DefaultConfig() Config {
	return Config{
		Image:   "python:3.12-alpine",
		Command: []string{"python", "-c"},
		// 128 MB
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     5 * time.Second,
		PoolSize:    3,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Image == "" {
		c.Image = d.Image
	}
	if len(c.Command) == 0 {
		c.Command = d.Command
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = d.MemoryLimit
	}
	if c.CPULimit <= 0 {
		c.CPULimit = d.CPULimit
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	return c
}

// command returns the exec argv for one piece of source.
func (c Config) command(code string) []string {
	cmd := make([]string, 0, len(c.Command)+1)
	cmd = append(cmd, c.Command...)
	return append(cmd, code)
}
