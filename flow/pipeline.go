package flow

import (
	"fmt"

	"github.com/hupe1980/flowmesh/core"
)

// RequestProcessor shapes the outbound request before a model call. It may
// mutate req in place and return nil, or return a replacement request.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error)
}

// ResponseProcessor reacts to a model response. See Rerun for how each flow
// policy treats a replacement request.
type ResponseProcessor interface {
	Name() string
	ProcessResponse(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error)
}

// RequestProcessorFunc adapts a function to RequestProcessor.
type RequestProcessorFunc struct {
	ID string
	Fn func(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error)
}

// Name implements RequestProcessor.
func (p RequestProcessorFunc) Name() string { return p.ID }

// ProcessRequest implements RequestProcessor.
func (p RequestProcessorFunc) ProcessRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	return p.Fn(ic, req)
}

// ResponseProcessorFunc adapts a function to ResponseProcessor.
type ResponseProcessorFunc struct {
	ID string
	Fn func(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error)
}

// Name implements ResponseProcessor.
func (p ResponseProcessorFunc) Name() string { return p.ID }

// ProcessResponse implements ResponseProcessor.
func (p ResponseProcessorFunc) ProcessResponse(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error) {
	return p.Fn(ic, req, resp)
}

// Pipeline runs request and response processors in registration order.
type Pipeline struct {
	requests  []RequestProcessor
	responses []ResponseProcessor
}

// NewPipeline creates a pipeline. Either list may be empty.
func NewPipeline(requests []RequestProcessor, responses []ResponseProcessor) *Pipeline {
	return &Pipeline{
		requests:  append([]RequestProcessor(nil), requests...),
		responses: append([]ResponseProcessor(nil), responses...),
	}
}

// RequestProcessors returns the registered request processors.
func (p *Pipeline) RequestProcessors() []RequestProcessor {
	return append([]RequestProcessor(nil), p.requests...)
}

// ResponseProcessors returns the registered response processors.
func (p *Pipeline) ResponseProcessors() []ResponseProcessor {
	return append([]ResponseProcessor(nil), p.responses...)
}

// ApplyRequest runs every request processor over req and returns the
// resulting request. An empty pipeline returns req unchanged.
func (p *Pipeline) ApplyRequest(ic *core.InvocationContext, req *core.LLMRequest) (*core.LLMRequest, error) {
	for _, proc := range p.requests {
		next, err := proc.ProcessRequest(ic, req)
		if err != nil {
			return req, fmt.Errorf("request processor %s: %w", proc.Name(), err)
		}
		if next != nil {
			req = next
		}
	}
	return req, nil
}

// ApplyResponse runs the response processors in order. A continue outcome
// hands its response to the next processor; the first rerun or terminal
// outcome stops the pipeline.
func (p *Pipeline) ApplyResponse(ic *core.InvocationContext, req *core.LLMRequest, resp *core.LLMResponse) (Outcome, error) {
	out := Continue(resp)
	for _, proc := range p.responses {
		o, err := proc.ProcessResponse(ic, req, out.Response)
		if err != nil {
			return out, fmt.Errorf("response processor %s: %w", proc.Name(), err)
		}
		if o.Kind != OutcomeContinue {
			ic.LogDebug("flow.pipeline.short_circuit", "processor", proc.Name(), "outcome", o.Kind.String())
			return o, nil
		}
		if o.Response != nil {
			out.Response = o.Response
		}
	}
	return out, nil
}
