package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/tool"
)

const instrumentationName = "github.com/hupe1980/flowmesh"

func tracerOrGlobal(tracer trace.Tracer) trace.Tracer {
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

// InstrumentRegistry wraps every model resolved through reg. Either metrics
// or tracer may be nil; a nil tracer falls back to the global provider.
func InstrumentRegistry(reg core.LLMRegistry, metrics *Metrics, tracer trace.Tracer) core.LLMRegistry {
	return &registry{next: reg, metrics: metrics, tracer: tracerOrGlobal(tracer)}
}

type registry struct {
	next    core.LLMRegistry
	metrics *Metrics
	tracer  trace.Tracer
}

func (r *registry) Get(name string) (core.LLM, error) {
	llm, err := r.next.Get(name)
	if err != nil {
		return nil, err
	}
	return &instrumentedLLM{LLM: llm, metrics: r.metrics, tracer: r.tracer}, nil
}

type instrumentedLLM struct {
	core.LLM
	metrics *Metrics
	tracer  trace.Tracer
}

func (m *instrumentedLLM) Generate(ctx context.Context, req *core.LLMRequest) (*core.LLMResponse, error) {
	ctx, span := m.tracer.Start(ctx, "llm.generate", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.model", m.Name())))
	defer span.End()

	start := time.Now()
	resp, err := m.LLM.Generate(ctx, req)
	m.record(span, time.Since(start), resp, err)

	return resp, err
}

func (m *instrumentedLLM) GenerateStream(ctx context.Context, req *core.LLMRequest) (<-chan *core.LLMResponse, <-chan error) {
	ctx, span := m.tracer.Start(ctx, "llm.generate_stream", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.model", m.Name())))

	start := time.Now()
	in, inErr := m.LLM.GenerateStream(ctx, req)

	out := make(chan *core.LLMResponse)
	outErr := make(chan error, 1)

	go func() {
		defer span.End()
		defer close(outErr)
		defer close(out)

		var (
			last *core.LLMResponse
			err  error
		)
		for in != nil || inErr != nil {
			select {
			case resp, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				last = resp
				select {
				case out <- resp:
				case <-ctx.Done():
				}
			case e, ok := <-inErr:
				if !ok {
					inErr = nil
					continue
				}
				err = e
			}
		}

		m.record(span, time.Since(start), last, err)
		if err != nil {
			outErr <- err
		}
	}()

	return out, outErr
}

func (m *instrumentedLLM) record(span trace.Span, d time.Duration, resp *core.LLMResponse, err error) {
	model := m.Name()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if resp != nil && resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
		)
	}

	if m.metrics == nil {
		return
	}

	m.metrics.ModelRequests.WithLabelValues(model, status(err)).Inc()
	m.metrics.ModelDuration.WithLabelValues(model).Observe(d.Seconds())
	if resp != nil && resp.Usage != nil {
		m.metrics.Tokens.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
		m.metrics.Tokens.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}
}

// InstrumentToolset installs middleware on ts that records a span and
// metrics for every executed tool. Tool hooks run inside the measurement.
func InstrumentToolset(ts *tool.Toolset, metrics *Metrics, tracer trace.Tracer) {
	tracer = tracerOrGlobal(tracer)

	ts.Use(func(next tool.CallFunc) tool.CallFunc {
		return func(tc *core.ToolContext, t tool.Tool, args map[string]any) (any, error) {
			ctx, span := tracer.Start(tc.Context(), "tool."+t.Name(), trace.WithAttributes(
				attribute.String("tool.name", t.Name()),
				attribute.String("tool.call_id", tc.FunctionCallID()),
				attribute.String("agent.name", tc.AgentName()),
			))
			defer span.End()

			start := time.Now()
			result, err := next(tc.WithContext(ctx), t, args)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			if metrics != nil {
				metrics.ToolExecutions.WithLabelValues(t.Name(), status(err)).Inc()
				metrics.ToolDuration.WithLabelValues(t.Name()).Observe(time.Since(start).Seconds())
			}

			return result, err
		}
	})
}
