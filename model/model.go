package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/flowmesh/core"
)

// ErrModelNotFound is returned by Registry.Get for unknown names.
var ErrModelNotFound = errors.New("model not found")

// Factory lazily constructs a model client.
type Factory func() (core.LLM, error)

// Registry resolves model clients by name. Factories are invoked at most once
// per name; the resulting client is memoised. A Registry is safe for
// concurrent use.
type Registry struct {
	mu        sync.Mutex
	models    map[string]core.LLM
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: map[string]core.LLM{}, factories: map[string]Factory{}}
}

// Register binds name to a constructed client, replacing any previous binding.
func (r *Registry) Register(name string, m core.LLM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
	delete(r.factories, name)
}

// RegisterFactory binds name to a lazily invoked factory.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.models, name)
}

// Get implements core.LLMRegistry.
func (r *Registry) Get(name string) (core.LLM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[name]; ok {
		return m, nil
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}

	m, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct model %q: %w", name, err)
	}
	r.models[name] = m
	delete(r.factories, name)

	return m, nil
}

// Names lists registered names (constructed or lazy) in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.models)+len(r.factories))
	for n := range r.models {
		names = append(names, n)
	}
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// EstimateTokens approximates the prompt size of req at four characters per
// token. Adapters without a counting endpoint use it for CountTokens.
func EstimateTokens(req *core.LLMRequest) int {
	if req == nil {
		return 0
	}

	chars := utf8.RuneCountInString(req.SystemInstruction)
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			switch v := p.(type) {
			case core.TextPart:
				chars += utf8.RuneCountInString(v.Text)
			case core.FunctionCallPart:
				chars += len(v.FunctionCall.Name) + len(v.FunctionCall.Arguments)
			case core.FunctionResponsePart:
				chars += len(v.FunctionResponse.Name) + len(fmt.Sprint(v.FunctionResponse.Response)) + len(v.FunctionResponse.Error)
			case core.ExecutableCodePart:
				chars += len(v.Code)
			case core.CodeResultPart:
				chars += len(v.Output)
			}
		}
	}
	for _, t := range req.Tools {
		chars += len(t.Name) + len(t.Description)
	}

	return (chars + 3) / 4
}

// StreamOf adapts a single final response into the GenerateStream channel
// shape, emitting word-sized partial text chunks first.
func StreamOf(ctx context.Context, resp *core.LLMResponse, err error) (<-chan *core.LLMResponse, <-chan error) {
	out := make(chan *core.LLMResponse, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err != nil {
			errCh <- err
			return
		}

		if text := resp.Primary().Text(); text != "" && len(resp.FunctionCalls()) == 0 {
			for _, word := range strings.SplitAfter(text, " ") {
				chunk := core.NewTextResponse(word)
				chunk.Partial = true
				chunk.Candidates[0].FinishReason = ""
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- chunk:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- resp:
		}
	}()

	return out, errCh
}
