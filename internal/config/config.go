// Package config loads the service configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and a handful of environment variables (PORT, DB_PATH,
// JWT_SECRET, LOG_LEVEL). A .env file in the working directory is loaded into
// the environment first if present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sakif/codeexec/internal/apperror"
)

// Executor kinds accepted in ExecutorConfig.Kind.
const (
	KindLocal       = "local"
	KindIsolated    = "isolated"
	KindUnsafeLocal = "unsafe-local"
	KindDocker      = "docker"
)

// EnvConfigPath names the variable that selects a config file when no
// -config flag is given.
const EnvConfigPath = "CODEEXEC_CONFIG"

const (
	defaultPort             = 8080
	defaultDBPath           = "data/codeexec.db"
	defaultLogLevel         = "info"
	defaultMaxCodeLength    = 64 * 1024
	defaultBatchConcurrency = 4
	defaultMaxBatchSize     = 32
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"dbPath"`
	JWTSecret string `yaml:"jwtSecret"`
	LogLevel  string `yaml:"logLevel"`
}

// ExecutionConfig holds limits applied by the execution service.
type ExecutionConfig struct {
	MaxCodeLength    int `yaml:"maxCodeLength"`
	BatchConcurrency int `yaml:"batchConcurrency"`
	MaxBatchSize     int `yaml:"maxBatchSize"`
}

// ExecutorConfig describes one named executor instance.
type ExecutorConfig struct {
	Name             string        `yaml:"name"`
	Kind             string        `yaml:"kind"`
	Stateful         bool          `yaml:"stateful"`
	OptimizeDataFile bool          `yaml:"optimizeDataFile"`
	Timeout          time.Duration `yaml:"timeout"`

	// in-process kinds
	MaxSteps uint64 `yaml:"maxSteps"`

	// unsafe-local
	UseIsolatedProcess bool `yaml:"useIsolatedProcess"`

	// isolated and unsafe-local with useIsolatedProcess
	Interpreter string   `yaml:"interpreter"`
	Args        []string `yaml:"args"`
	Env         []string `yaml:"env"`
	Dir         string   `yaml:"dir"`

	// docker
	Image       string   `yaml:"image"`
	Command     []string `yaml:"command"`
	MemoryLimit int64    `yaml:"memoryLimit"`
	CPULimit    float64  `yaml:"cpuLimit"`
	PoolSize    int      `yaml:"poolSize"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Execution ExecutionConfig  `yaml:"execution"`
	Executors []ExecutorConfig `yaml:"executors"`
}

// Default returns the configuration used when no file is given: one
// executor of each process kind.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     defaultPort,
			DBPath:   defaultDBPath,
			LogLevel: defaultLogLevel,
		},
		Execution: ExecutionConfig{
			MaxCodeLength:    defaultMaxCodeLength,
			BatchConcurrency: defaultBatchConcurrency,
			MaxBatchSize:     defaultMaxBatchSize,
		},
		Executors: []ExecutorConfig{
			{Name: "local", Kind: KindLocal, Timeout: 10 * time.Second},
			{Name: "isolated", Kind: KindIsolated, Timeout: 30 * time.Second},
			{Name: "unsafe-local", Kind: KindUnsafeLocal, Timeout: 10 * time.Second},
		},
	}
}

// Load builds the configuration from path (may be empty) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return invalid("PORT", fmt.Sprintf("invalid value %q", v))
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultDBPath
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Execution.MaxCodeLength <= 0 {
		c.Execution.MaxCodeLength = defaultMaxCodeLength
	}
	if c.Execution.BatchConcurrency <= 0 {
		c.Execution.BatchConcurrency = defaultBatchConcurrency
	}
	if c.Execution.MaxBatchSize <= 0 {
		c.Execution.MaxBatchSize = defaultMaxBatchSize
	}
}

// Validate checks ports, log level and the executor list. Executor option
// flags are not checked here; the executor constructors reject them.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port", fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port))
	}
	if _, err := ParseLevel(c.Server.LogLevel); err != nil {
		return err
	}
	if len(c.Executors) == 0 {
		return invalid("executors", "at least one executor is required")
	}

	seen := make(map[string]bool, len(c.Executors))
	for i, e := range c.Executors {
		field := fmt.Sprintf("executors[%d]", i)
		if e.Name == "" {
			return invalid(field+".name", "is required")
		}
		if seen[e.Name] {
			return invalid(field+".name", fmt.Sprintf("duplicate executor %q", e.Name))
		}
		seen[e.Name] = true

		switch e.Kind {
		case KindLocal, KindIsolated, KindUnsafeLocal, KindDocker:
		default:
			return invalid(field+".kind", fmt.Sprintf("unknown kind %q", e.Kind))
		}
		if e.Timeout < 0 {
			return invalid(field+".timeout", "must not be negative")
		}
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, invalid("server.logLevel", fmt.Sprintf("unknown level %q", s))
	}
}

func invalid(field, msg string) error {
	return apperror.ValidationFailed(field, field+": "+msg)
}
