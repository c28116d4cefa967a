package flow

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/tool"
)

var errCallback = errors.New("callback failed")

// Options configures a flow.
type Options struct {
	// MaxInteractions bounds model calls per turn. Values <= 0 fall back to
	// core.DefaultMaxInteractions. RunConfig.MaxInteractions overrides it
	// when set.
	MaxInteractions int
	// Defaults is the generation config agents merge their own over.
	Defaults core.GenerationConfig
	// Toolset takes priority over the agent's own toolset when set.
	Toolset *tool.Toolset
	// RequestProcessors run after the built-in request processors.
	RequestProcessors []RequestProcessor
	// ResponseProcessors run after the built-in response processors.
	ResponseProcessors []ResponseProcessor
	// Pipeline replaces the built-in processors entirely.
	Pipeline *Pipeline
}

// base holds the mechanics shared by both flow policies: model resolution,
// callbacks, streaming and the model_request/model_response events.
type base struct {
	name     string
	opts     Options
	pipeline *Pipeline
}

func newBase(name string, mode Mode, optFns []func(o *Options)) base {
	opts := Options{MaxInteractions: core.DefaultMaxInteractions}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxInteractions <= 0 {
		opts.MaxInteractions = core.DefaultMaxInteractions
	}

	pipeline := opts.Pipeline
	if pipeline == nil {
		requests := append(DefaultRequestProcessors(opts.Toolset), opts.RequestProcessors...)
		responses := append([]ResponseProcessor{
			NewToolExecutionProcessor(mode, func(o *ToolExecutionOptions) { o.Toolset = opts.Toolset }),
			NewCodeExecutionProcessor(mode),
		}, opts.ResponseProcessors...)
		pipeline = NewPipeline(requests, responses)
	}

	return base{name: name, opts: opts, pipeline: pipeline}
}

// DefaultRequestProcessors returns the built-in request processors in
// their registration order.
func DefaultRequestProcessors(toolset *tool.Toolset) []RequestProcessor {
	return []RequestProcessor{
		NewInstructionsProcessor(),
		NewAgentTransferProcessor(),
		NewContentsProcessor(),
		NewToolDeclarationProcessor(toolset),
		NewCodeExecutionRequestProcessor(),
	}
}

// Name implements Flow.
func (b *base) Name() string { return b.name }

// Defaults implements Flow.
func (b *base) Defaults() core.GenerationConfig { return b.opts.Defaults }

// Pipeline returns the processors the flow runs.
func (b *base) Pipeline() *Pipeline { return b.pipeline }

func (b *base) ceiling(ic *core.InvocationContext) int {
	if ic.RunConfig.MaxInteractions > 0 {
		return ic.RunConfig.MaxInteractions
	}
	return b.opts.MaxInteractions
}

// resolveModel picks the request's model, falling back to the run default.
func resolveModel(ic *core.InvocationContext, req *core.LLMRequest) (core.LLM, error) {
	name := req.Model
	if name == "" {
		name = ic.RunConfig.DefaultModel
	}
	if name == "" {
		return nil, errors.New("no model configured for agent " + ic.AgentName())
	}
	if ic.Services.Models == nil {
		return nil, errors.New("no model registry configured")
	}
	llm, err := ic.Services.Models.Get(name)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}
	return llm, nil
}

// callModel performs one model round trip and records it in the session
// log. On failure the returned event is an already appended error event.
func (b *base) callModel(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMResponse, *core.Event) {
	llm, err := resolveModel(ic, req)
	if err != nil {
		ev := b.fail(ic, core.ErrCodeConfiguration, err.Error())
		return nil, &ev
	}

	if err := ic.Err(); err != nil {
		ev := b.fail(ic, core.ErrCodeModel, err.Error())
		return nil, &ev
	}

	if _, err := ic.AppendEvent(core.NewModelRequestEvent(ic.AgentName(), req)); err != nil {
		ev := b.fail(ic, core.ErrCodeSession, err.Error())
		return nil, &ev
	}

	start := time.Now()
	ic.LogInfo("flow.model.call", "flow", b.name, "agent", ic.AgentName(), "model", llm.Name(), "streaming", ic.RunConfig.Streaming)

	resp, err := b.generate(ic, llm, req)
	if err != nil {
		code := core.ErrCodeModel
		if errors.Is(err, errCallback) {
			code = core.ErrCodeCallback
		}
		ev := b.fail(ic, code, err.Error())
		return nil, &ev
	}

	ensureCallIDs(resp)

	ic.LogInfo("flow.model.response",
		"flow", b.name,
		"agent", ic.AgentName(),
		"model", llm.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"function_calls", len(resp.FunctionCalls()),
	)

	if _, err := ic.AppendEvent(core.NewModelResponseEvent(llm.Name(), resp)); err != nil {
		ev := b.fail(ic, core.ErrCodeSession, err.Error())
		return nil, &ev
	}

	if resp.Error != "" {
		ev := b.fail(ic, core.ErrCodeModel, resp.Error)
		return nil, &ev
	}

	return resp, nil
}

func (b *base) generate(ic *core.InvocationContext, llm core.LLM, req *core.LLMRequest) (*core.LLMResponse, error) {
	cbs := callbacksFor(ic)

	for _, cb := range cbs.BeforeModel {
		resp, err := cb(ic, req)
		if err != nil {
			return nil, fmt.Errorf("%w: before model: %w", errCallback, err)
		}
		if resp != nil {
			ic.LogDebug("flow.model.short_circuit", "agent", ic.AgentName())
			return resp, nil
		}
	}

	var (
		resp *core.LLMResponse
		err  error
	)
	if ic.RunConfig.Streaming {
		resp, err = b.stream(ic, llm, req)
	} else {
		resp, err = llm.Generate(ic.Context, req)
	}
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", llm.Name(), err)
	}
	if resp == nil {
		return nil, fmt.Errorf("model %s returned no response", llm.Name())
	}

	for _, cb := range cbs.AfterModel {
		replaced, err := cb(ic, req, resp)
		if err != nil {
			return nil, fmt.Errorf("%w: after model: %w", errCallback, err)
		}
		if replaced != nil {
			resp = replaced
		}
	}

	return resp, nil
}

// stream drains a streaming generation. Partial chunks go to
// RunConfig.OnPartial and are never appended to the session log.
func (b *base) stream(ic *core.InvocationContext, llm core.LLM, req *core.LLMRequest) (*core.LLMResponse, error) {
	out, errCh := llm.GenerateStream(ic.Context, req)

	var final *core.LLMResponse
	for out != nil || errCh != nil {
		select {
		case r, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			if !r.Partial {
				final = r
				continue
			}
			if ic.RunConfig.OnPartial != nil {
				ev, err := ic.Stamp(core.NewModelResponseEvent(llm.Name(), r))
				if err == nil {
					ic.RunConfig.OnPartial(ev)
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		return nil, errors.New("stream ended without a final response")
	}
	return final, nil
}

// fail appends an error event and returns it. A failing append is logged;
// the event is still returned as the turn's outcome.
func (b *base) fail(ic *core.InvocationContext, code, msg string) core.Event {
	ic.LogError("flow.error", "flow", b.name, "agent", ic.AgentName(), "code", code, "error", msg)

	ev := core.NewErrorEvent(core.AgentSource(ic.AgentName()), code, msg)
	stored, err := ic.AppendEvent(ev)
	if err != nil {
		ic.LogError("flow.error.append", "flow", b.name, "error", err.Error())
		stamped, _ := ic.Stamp(ev)
		return stamped
	}
	return stored
}

// appendAll appends outcome events in order.
func (b *base) appendAll(ic *core.InvocationContext, events []core.Event) (*core.Event, error) {
	var last *core.Event
	for _, ev := range events {
		stored, err := ic.AppendEvent(ev)
		if err != nil {
			return last, err
		}
		last = &stored
	}
	return last, nil
}

// finalMessage wraps the last model response into the turn's conclusive
// event. Its content is already in the log as a model_response, so it is
// stamped but not appended.
func finalMessage(ic *core.InvocationContext, resp *core.LLMResponse) core.Event {
	var content *core.Content
	if c := resp.Primary(); c != nil {
		content = c.Clone()
	}
	ev := core.NewMessageEvent(ic.AgentName(), content)
	ev.LLMResponse = resp.Clone()
	stamped, _ := ic.Stamp(ev)
	return stamped
}

// guard converts a panic raised by a processor or callback into an error
// event so that nothing escapes the flow boundary.
func (b *base) guard(ic *core.InvocationContext, result *core.Event) {
	if r := recover(); r != nil {
		ic.LogError("flow.panic", "flow", b.name, "agent", ic.AgentName(), "recover", r, "stack", string(debug.Stack()))
		*result = b.fail(ic, core.ErrCodeProcessor, fmt.Sprintf("panic: %v", r))
	}
}

func ensureCallIDs(resp *core.LLMResponse) {
	c := resp.Primary()
	if c == nil {
		return
	}
	for i, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = core.NewID()
			c.Parts[i] = fc
		}
	}
}
