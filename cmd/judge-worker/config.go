package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"veloj/internal/common/cache"
	"veloj/internal/common/db"
	"veloj/internal/common/storage"
	"veloj/internal/judge/batchjudge"
	"veloj/internal/judge/executor"
	"veloj/internal/judge/loader"
	"veloj/pkg/utils/config"
	"veloj/pkg/utils/logger"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultQueueName       = "submissions"
)

// Runner modes.
const (
	runnerSandbox = "sandbox"
	runnerBatch   = "batch"
)

// Test case sources.
const (
	casesMySQL    = "mysql"
	casesDatapack = "datapack"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string          `yaml:"addr"`
	ReadTimeout     config.Duration `yaml:"readTimeout"`
	WriteTimeout    config.Duration `yaml:"writeTimeout"`
	IdleTimeout     config.Duration `yaml:"idleTimeout"`
	ShutdownTimeout config.Duration `yaml:"shutdownTimeout"`
	JWTSecret       string          `yaml:"jwtSecret"`
}

// QueueConfig holds job queue consumption settings.
type QueueConfig struct {
	Name              string          `yaml:"name"`
	Concurrency       int             `yaml:"concurrency"`
	MaxAttempts       int             `yaml:"maxAttempts"`
	RetryBaseDelay    config.Duration `yaml:"retryBaseDelay"`
	RetryMaxDelay     config.Duration `yaml:"retryMaxDelay"`
	VisibilityTimeout config.Duration `yaml:"visibilityTimeout"`
	PollInterval      config.Duration `yaml:"pollInterval"`
}

// RunnerConfig selects how test cases are executed.
type RunnerConfig struct {
	// Mode is "sandbox" for local execution or "batch" for the remote
	// batch judge.
	Mode  string            `yaml:"mode"`
	Batch batchjudge.Config `yaml:"batch"`
}

// CasesConfig selects where test cases come from.
type CasesConfig struct {
	// Source is "mysql" or "datapack".
	Source   string                `yaml:"source"`
	Datapack loader.DatapackConfig `yaml:"datapack"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	Database db.MySQLConfig      `yaml:"database"`
	Minio    storage.MinioConfig `yaml:"minio"`
	Queue    QueueConfig         `yaml:"queue"`
	Runner   RunnerConfig        `yaml:"runner"`
	Cases    CasesConfig         `yaml:"cases"`
	Executor executor.Config     `yaml:"executor"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Database.Host == "" || cfg.Database.Database == "" {
		return nil, fmt.Errorf("database host and name are required")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = config.Duration(defaultReadTimeout)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = config.Duration(defaultWriteTimeout)
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = config.Duration(defaultIdleTimeout)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = config.Duration(defaultShutdownTimeout)
	}
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = defaultQueueName
	}
	switch cfg.Runner.Mode {
	case "":
		cfg.Runner.Mode = runnerSandbox
	case runnerSandbox, runnerBatch:
	default:
		return nil, fmt.Errorf("unknown runner mode %q", cfg.Runner.Mode)
	}
	if cfg.Runner.Mode == runnerBatch && cfg.Runner.Batch.BaseURL == "" {
		return nil, fmt.Errorf("runner.batch.baseUrl is required in batch mode")
	}
	switch cfg.Cases.Source {
	case "":
		cfg.Cases.Source = casesMySQL
	case casesMySQL:
	case casesDatapack:
		if cfg.Minio.Endpoint == "" {
			return nil, fmt.Errorf("minio endpoint is required for the datapack source")
		}
	default:
		return nil, fmt.Errorf("unknown test case source %q", cfg.Cases.Source)
	}
	return &cfg, nil
}
