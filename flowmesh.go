// Package flowmesh wires a complete agent runtime from a config.Config:
// logger, session and artifact stores, memory, model registry, code
// executor and telemetry. Most applications:
//  1. Load a configuration with config.Load (or start from config.Default)
//  2. Build a Mesh with New
//  3. Construct agents (see package agent), instrumenting their toolsets
//  4. Create a runner.Runner with Mesh.NewRunner and call Run / RunText
//
// Everything defaults to in-memory services, which is safe for local
// development and tests.
package flowmesh

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hupe1980/flowmesh/artifact"
	"github.com/hupe1980/flowmesh/artifact/s3"
	"github.com/hupe1980/flowmesh/code"
	"github.com/hupe1980/flowmesh/code/docker"
	"github.com/hupe1980/flowmesh/config"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/flow"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/memory"
	"github.com/hupe1980/flowmesh/model"
	anthropicmodel "github.com/hupe1980/flowmesh/model/anthropic"
	openaimodel "github.com/hupe1980/flowmesh/model/openai"
	"github.com/hupe1980/flowmesh/runner"
	"github.com/hupe1980/flowmesh/session"
	"github.com/hupe1980/flowmesh/telemetry"
	"github.com/hupe1980/flowmesh/tool"
)

// Options overrides pieces New would otherwise build from the config.
type Options struct {
	// Logger replaces the logger built from the logging section.
	Logger logging.Logger
	// Registerer receives the Prometheus collectors when metrics are on.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// TracerProvider is used when tracing is on. Defaults to the global one.
	TracerProvider trace.TracerProvider
	// Models are registered in addition to the configured ones and win on
	// name clashes.
	Models map[string]core.LLM
	// Overrides for the configured stores and executor.
	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	CodeExecutor  core.CodeExecutor
}

// Mesh holds the services shared by every runner built from one
// configuration.
type Mesh struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	closers []io.Closer

	Sessions     core.SessionStore
	Artifacts    core.ArtifactStore
	Memory       core.MemoryStore
	Registry     *model.Registry
	Models       core.LLMRegistry
	CodeExecutor core.CodeExecutor
}

// New builds a Mesh. A nil cfg means config.Default().
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Mesh{cfg: cfg, logger: opts.Logger}
	if m.logger == nil {
		m.logger = logging.NewLogger(cfg.LoggerConfig())
	}

	if err := m.buildStores(ctx, opts); err != nil {
		_ = m.Close()
		return nil, err
	}

	m.buildTelemetry(opts)
	m.buildModels(opts)

	executor, err := m.buildCodeExecutor(opts)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	m.CodeExecutor = executor

	m.logger.Info("flowmesh.ready",
		"app", cfg.AppName,
		"session_driver", cfg.Session.Driver,
		"artifact_driver", cfg.Artifacts.Driver,
		"code_executor", cfg.CodeExecutor.Driver,
		"models", m.Registry.Names(),
	)

	return m, nil
}

func (m *Mesh) buildStores(ctx context.Context, opts Options) error {
	cfg := m.cfg

	switch {
	case opts.SessionStore != nil:
		m.Sessions = opts.SessionStore
	case cfg.Session.Driver == "sqlite":
		store, err := session.NewSQLiteStore(cfg.Session.DSN, func(o *session.SQLStoreOptions) { o.Logger = m.logger })
		if err != nil {
			return err
		}
		m.Sessions = store
		m.closers = append(m.closers, store)
	case cfg.Session.Driver == "postgres":
		store, err := session.NewPostgresStore(cfg.Session.DSN, func(o *session.SQLStoreOptions) { o.Logger = m.logger })
		if err != nil {
			return err
		}
		m.Sessions = store
		m.closers = append(m.closers, store)
	default:
		m.Sessions = session.NewInMemoryStore()
	}

	switch {
	case opts.ArtifactStore != nil:
		m.Artifacts = opts.ArtifactStore
	case cfg.Artifacts.Driver == "s3":
		store, err := s3.New(ctx, cfg.Artifacts.Bucket, func(o *s3.Options) {
			o.Region = cfg.Artifacts.Region
			o.Endpoint = cfg.Artifacts.Endpoint
			o.Prefix = cfg.Artifacts.Prefix
			o.UsePathStyle = cfg.Artifacts.PathStyle
		})
		if err != nil {
			return err
		}
		m.Artifacts = store
	default:
		m.Artifacts = artifact.NewInMemoryStore()
	}

	m.Memory = opts.MemoryStore
	if m.Memory == nil {
		m.Memory = memory.NewInMemoryStore()
	}

	return nil
}

func (m *Mesh) buildTelemetry(opts Options) {
	cfg := m.cfg.Telemetry

	if cfg.Metrics {
		m.metrics = telemetry.NewMetrics(func(o *telemetry.MetricsOptions) {
			o.Namespace = cfg.Namespace
			if opts.Registerer != nil {
				o.Registerer = opts.Registerer
			}
		})
	}

	switch {
	case !cfg.Tracing:
		m.tracer = noop.NewTracerProvider().Tracer("")
	case opts.TracerProvider != nil:
		m.tracer = opts.TracerProvider.Tracer("github.com/hupe1980/flowmesh")
	default:
		m.tracer = otel.Tracer("github.com/hupe1980/flowmesh")
	}
}

func (m *Mesh) buildModels(opts Options) {
	m.Registry = model.NewRegistry()

	for name, mc := range m.cfg.Models {
		switch mc.Provider {
		case "openai":
			m.Registry.RegisterFactory(name, func() (core.LLM, error) {
				return openaimodel.NewModel(func(o *openaimodel.Options) {
					o.Model = mc.Model
					o.APIKey = mc.APIKey
					if mc.Temperature > 0 {
						o.Temperature = mc.Temperature
					}
					if mc.MaxTokens > 0 {
						o.MaxCompletionTokens = mc.MaxTokens
					}
				}), nil
			})
		case "anthropic":
			m.Registry.RegisterFactory(name, func() (core.LLM, error) {
				return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
					o.Model = anthropic.Model(mc.Model)
					o.APIKey = mc.APIKey
					if mc.Temperature > 0 {
						o.Temperature = mc.Temperature
					}
					if mc.MaxTokens > 0 {
						o.MaxTokens = mc.MaxTokens
					}
				}), nil
			})
		case "echo":
			m.Registry.Register(name, model.NewEchoModel(name))
		}
	}

	for name, llm := range opts.Models {
		m.Registry.Register(name, llm)
	}

	m.Models = m.Registry
	if m.metrics != nil || m.cfg.Telemetry.Tracing {
		m.Models = telemetry.InstrumentRegistry(m.Registry, m.metrics, m.tracer)
	}
}

func (m *Mesh) buildCodeExecutor(opts Options) (core.CodeExecutor, error) {
	if opts.CodeExecutor != nil {
		return opts.CodeExecutor, nil
	}

	cfg := m.cfg.CodeExecutor

	switch cfg.Driver {
	case "local":
		return code.NewLocalExecutor(func(o *code.LocalExecutorOptions) {
			o.Timeout = cfg.Timeout
			o.WorkDir = cfg.WorkDir
			o.Logger = m.logger
		}), nil
	case "docker":
		executor, err := docker.New(func(o *docker.Options) {
			o.Timeout = cfg.Timeout
			o.Logger = m.logger
			if cfg.Image != "" {
				py := o.Images["python"]
				py.Name = cfg.Image
				o.Images["python"] = py
			}
		})
		if err != nil {
			return nil, err
		}
		return executor, nil
	default:
		return nil, nil
	}
}

// Config returns the configuration the mesh was built from.
func (m *Mesh) Config() *config.Config { return m.cfg }

// Logger returns the mesh logger.
func (m *Mesh) Logger() logging.Logger { return m.logger }

// Flow returns the flow forced by flow.policy, or nil when the policy is
// "auto" and each agent picks its own.
func (m *Mesh) Flow() flow.Flow {
	withMax := func(o *flow.Options) { o.MaxInteractions = m.cfg.Flow.MaxInteractions }

	switch m.cfg.Flow.Policy {
	case "single":
		return flow.NewSingleTurnFlow(withMax)
	case "multi":
		return flow.NewMultiTurnFlow(withMax)
	default:
		return nil
	}
}

// InstrumentTools records metrics and spans for every tool in ts when
// telemetry is enabled.
func (m *Mesh) InstrumentTools(ts *tool.Toolset) {
	if ts == nil || (m.metrics == nil && !m.cfg.Telemetry.Tracing) {
		return
	}
	telemetry.InstrumentToolset(ts, m.metrics, m.tracer)
}

// NewRunner creates a runner for the agent tree rooted at root that shares
// the mesh services.
func (m *Mesh) NewRunner(root core.Agent, optFns ...func(o *runner.Options)) *runner.Runner {
	return runner.New(root, append([]func(o *runner.Options){func(o *runner.Options) {
		o.AppName = m.cfg.AppName
		o.MaxTransfers = m.cfg.Runner.MaxTransfers
		o.DefaultModel = m.cfg.DefaultModel
		o.MaxInteractions = m.cfg.Flow.MaxInteractions
		o.SessionStore = m.Sessions
		o.ArtifactStore = m.Artifacts
		o.MemoryStore = m.Memory
		o.Models = m.Models
		o.CodeExecutor = m.CodeExecutor
		o.Logger = m.logger
	}}, optFns...)...)
}

// Close releases database connections held by the stores.
func (m *Mesh) Close() error {
	var result *multierror.Error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	m.closers = nil
	return result.ErrorOrNil()
}
