package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/logging"
)

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("FLOWMESH_TEST_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "flowmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: support
default_model: fast
session:
  driver: sqlite
  dsn: /tmp/sessions.db
code_executor:
  driver: local
  timeout: 5s
models:
  fast:
    provider: openai
    model: gpt-4o-mini
    api_key: ${FLOWMESH_TEST_KEY}
    temperature: 0.2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "support", cfg.AppName)
	assert.Equal(t, "sk-test", cfg.Models["fast"].APIKey)
	assert.Equal(t, 5*time.Second, cfg.CodeExecutor.Timeout)
	assert.Equal(t, "auto", cfg.Flow.Policy)
	assert.Equal(t, 5, cfg.Flow.MaxInteractions)
	assert.Equal(t, "memory", cfg.Artifacts.Driver)
	assert.Equal(t, 10, cfg.Runner.MaxTransfers)
	assert.Equal(t, "flowmesh", cfg.Telemetry.Namespace)
}

func TestParse_EmptyDocumentIsDefault(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("sessions:\n  driver: memory\n"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := Default()
	cfg.Flow.Policy = "parallel"
	cfg.Logging.Level = "verbose"
	cfg.Session.Driver = "postgres"
	cfg.Artifacts.Driver = "s3"
	cfg.DefaultModel = "missing"
	cfg.Models = map[string]ModelConfig{
		"m": {Provider: "bedrock", Temperature: 3},
	}

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 8)

	for _, want := range []string{
		`flow.policy: unsupported value "parallel"`,
		"logging.level",
		`session.dsn: required for driver "postgres"`,
		"artifacts.bucket",
		`models.m.provider: unsupported value "bedrock"`,
		"models.m.model: required",
		"models.m.temperature",
		`default_model: "missing"`,
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load(" ")
	assert.ErrorContains(t, err, "config path is required")

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "text", lc.Format)
	assert.Equal(t, "flowmesh", lc.Component)
}

func TestSchema_UsesYAMLNames(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &schema))

	for _, key := range []string{"app_name", "default_model", "session", "artifacts", "code_executor", "models", "telemetry", "runner"} {
		assert.Contains(t, schema.Properties, key)
	}
	assert.Contains(t, string(data), `"postgres"`)
}
