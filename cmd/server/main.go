// Command server runs the code execution service.
//
// The same binary doubles as the interpreter for isolated executions: when
// invoked as `server -c <source>` it evaluates the source and exits instead
// of starting the HTTP server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/codeexec/internal/config"
	"github.com/sakif/codeexec/internal/interp"
	"github.com/sakif/codeexec/internal/metrics"
	"github.com/sakif/codeexec/internal/repository/sqlite"
	"github.com/sakif/codeexec/internal/server"
	"github.com/sakif/codeexec/internal/service"
)

func main() {
	// Child mode must come before flag parsing: "-c" is not a server flag.
	if interp.IsChildInvocation(os.Args) {
		os.Exit(interp.Main(os.Args[1:], os.Stdout, os.Stderr))
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file (default $"+config.EnvConfigPath+")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := config.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if dbDir := filepath.Dir(cfg.Server.DBPath); cfg.Server.DBPath != sqlite.MemoryPath {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dbDir, err)
		}
	}

	collector := metrics.NewCollector("codeexec")

	registry, closeExecutors, err := buildExecutors(cfg.Executors, collector, logger)
	if err != nil {
		return err
	}
	defer closeExecutors()

	srv, err := server.New(server.Config{
		Port:      cfg.Server.Port,
		DBPath:    cfg.Server.DBPath,
		JWTSecret: cfg.Server.JWTSecret,
		Limits: service.Limits{
			MaxCodeLength:    cfg.Execution.MaxCodeLength,
			BatchConcurrency: cfg.Execution.BatchConcurrency,
			MaxBatchSize:     cfg.Execution.MaxBatchSize,
		},
	}, logger, registry, collector)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT or SIGTERM.
	return srv.Start()
}
