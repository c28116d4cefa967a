package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/flowmesh/logging"
)

// Config is the root of a flowmesh configuration file.
type Config struct {
	AppName      string                 `yaml:"app_name" jsonschema:"description=Application name recorded on sessions"`
	DefaultModel string                 `yaml:"default_model" jsonschema:"description=Model used when an agent names none"`
	Flow         FlowConfig             `yaml:"flow"`
	Logging      LoggingConfig          `yaml:"logging"`
	Session      SessionConfig          `yaml:"session"`
	Artifacts    ArtifactConfig         `yaml:"artifacts"`
	CodeExecutor CodeExecutorConfig     `yaml:"code_executor"`
	Models       map[string]ModelConfig `yaml:"models"`
	Telemetry    TelemetryConfig        `yaml:"telemetry"`
	Runner       RunnerConfig           `yaml:"runner"`
}

// FlowConfig bounds model calls per turn.
type FlowConfig struct {
	// Policy is "auto", "single" or "multi". Auto picks per agent.
	Policy          string `yaml:"policy" jsonschema:"enum=auto,enum=single,enum=multi"`
	MaxInteractions int    `yaml:"max_interactions" jsonschema:"minimum=1"`
}

// LoggingConfig configures the slog backed logger.
type LoggingConfig struct {
	Level     string `yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format    string `yaml:"format" jsonschema:"enum=json,enum=text"`
	AddSource bool   `yaml:"add_source"`
}

// SessionConfig selects the session store.
type SessionConfig struct {
	Driver string `yaml:"driver" jsonschema:"enum=memory,enum=sqlite,enum=postgres"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// ArtifactConfig selects the artifact store.
type ArtifactConfig struct {
	Driver    string `yaml:"driver" jsonschema:"enum=memory,enum=s3"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// CodeExecutorConfig selects where model-authored code runs.
type CodeExecutorConfig struct {
	Driver string `yaml:"driver" jsonschema:"enum=none,enum=local,enum=docker"`
	// Image overrides the python image for the docker driver.
	Image   string        `yaml:"image"`
	Timeout time.Duration `yaml:"timeout"`
	WorkDir string        `yaml:"work_dir"`
}

// ModelConfig registers one named model.
type ModelConfig struct {
	Provider    string  `yaml:"provider" jsonschema:"enum=openai,enum=anthropic,enum=echo"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// TelemetryConfig toggles Prometheus metrics and OpenTelemetry spans.
type TelemetryConfig struct {
	Metrics   bool   `yaml:"metrics"`
	Tracing   bool   `yaml:"tracing"`
	Namespace string `yaml:"namespace"`
}

// RunnerConfig bounds agent handoffs per run.
type RunnerConfig struct {
	MaxTransfers int `yaml:"max_transfers" jsonschema:"minimum=1"`
}

// Default returns a configuration that runs fully in memory.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, expands, parses and validates the file at path.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes a single YAML
// document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse config: expected a single document")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "flowmesh"
	}
	if cfg.Flow.Policy == "" {
		cfg.Flow.Policy = "auto"
	}
	if cfg.Flow.MaxInteractions == 0 {
		cfg.Flow.MaxInteractions = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Session.Driver == "" {
		cfg.Session.Driver = "memory"
	}
	if cfg.Artifacts.Driver == "" {
		cfg.Artifacts.Driver = "memory"
	}
	if cfg.Artifacts.Region == "" {
		cfg.Artifacts.Region = "us-east-1"
	}
	if cfg.CodeExecutor.Driver == "" {
		cfg.CodeExecutor.Driver = "none"
	}
	if cfg.CodeExecutor.Timeout == 0 {
		cfg.CodeExecutor.Timeout = 30 * time.Second
	}
	if cfg.Telemetry.Namespace == "" {
		cfg.Telemetry.Namespace = "flowmesh"
	}
	if cfg.Runner.MaxTransfers == 0 {
		cfg.Runner.MaxTransfers = 10
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		result = multierror.Append(result, fmt.Errorf("%s: unsupported value %q (want one of %s)", field, value, strings.Join(allowed, ", ")))
	}

	oneOf("flow.policy", c.Flow.Policy, "auto", "single", "multi")
	if c.Flow.MaxInteractions < 1 {
		result = multierror.Append(result, fmt.Errorf("flow.max_interactions: must be positive, got %d", c.Flow.MaxInteractions))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
	}
	oneOf("logging.format", c.Logging.Format, "json", "text")

	oneOf("session.driver", c.Session.Driver, "memory", "sqlite", "postgres")
	if c.Session.Driver != "memory" && strings.TrimSpace(c.Session.DSN) == "" {
		result = multierror.Append(result, fmt.Errorf("session.dsn: required for driver %q", c.Session.Driver))
	}

	oneOf("artifacts.driver", c.Artifacts.Driver, "memory", "s3")
	if c.Artifacts.Driver == "s3" && strings.TrimSpace(c.Artifacts.Bucket) == "" {
		result = multierror.Append(result, errors.New("artifacts.bucket: required for driver \"s3\""))
	}

	oneOf("code_executor.driver", c.CodeExecutor.Driver, "none", "local", "docker")
	if c.CodeExecutor.Timeout < 0 {
		result = multierror.Append(result, errors.New("code_executor.timeout: must not be negative"))
	}

	for name, m := range c.Models {
		prefix := "models." + name
		oneOf(prefix+".provider", m.Provider, "openai", "anthropic", "echo")
		if m.Provider != "echo" && strings.TrimSpace(m.Model) == "" {
			result = multierror.Append(result, fmt.Errorf("%s.model: required", prefix))
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			result = multierror.Append(result, fmt.Errorf("%s.temperature: must be within [0, 2], got %g", prefix, m.Temperature))
		}
		if m.MaxTokens < 0 {
			result = multierror.Append(result, fmt.Errorf("%s.max_tokens: must not be negative", prefix))
		}
	}

	if c.DefaultModel != "" && len(c.Models) > 0 {
		if _, ok := c.Models[c.DefaultModel]; !ok {
			result = multierror.Append(result, fmt.Errorf("default_model: %q is not defined under models", c.DefaultModel))
		}
	}

	if c.Runner.MaxTransfers < 1 {
		result = multierror.Append(result, fmt.Errorf("runner.max_transfers: must be positive, got %d", c.Runner.MaxTransfers))
	}

	return result.ErrorOrNil()
}

// LoggerConfig converts the logging section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return &logging.Config{
		Level:     level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
		Component: c.AppName,
	}
}
