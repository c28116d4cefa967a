package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

// EchoModel is a lightweight in-memory model useful for demos. It answers
// with a canned completion registered for the last user text, or echoes it.
type EchoModel struct {
	name      string
	mu        sync.RWMutex
	responses map[string]string
}

// NewEchoModel constructs an EchoModel.
func NewEchoModel(name string) *EchoModel {
	return &EchoModel{name: name, responses: map[string]string{}}
}

// AddResponse registers a deterministic completion for an input prompt.
func (m *EchoModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Name implements core.LLM.
func (m *EchoModel) Name() string { return m.name }

// Generate implements core.LLM.
func (m *EchoModel) Generate(ctx context.Context, req *core.LLMRequest) (*core.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("no contents provided")
	}

	var input string
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == core.RoleUser {
			input = req.Contents[i].Text()
			break
		}
	}

	m.mu.RLock()
	full, ok := m.responses[input]
	m.mu.RUnlock()
	if !ok {
		full = fmt.Sprintf("Echo: %s", input)
	}

	resp := core.NewTextResponse(full)
	resp.Usage = &core.Usage{PromptTokens: EstimateTokens(req), CompletionTokens: (len(full) + 3) / 4}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	return resp, nil
}

// GenerateStream implements core.LLM.
func (m *EchoModel) GenerateStream(ctx context.Context, req *core.LLMRequest) (<-chan *core.LLMResponse, <-chan error) {
	resp, err := m.Generate(ctx, req)
	return StreamOf(ctx, resp, err)
}

// CountTokens implements core.LLM.
func (m *EchoModel) CountTokens(_ context.Context, req *core.LLMRequest) (int, error) {
	return EstimateTokens(req), nil
}
