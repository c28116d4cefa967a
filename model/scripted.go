package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

type step struct {
	resp *core.LLMResponse
	err  error
}

// ScriptedModel replays queued responses in order and records every request
// it receives. Once the queue is drained it answers with the repeat response
// if one is set, otherwise with an error. Useful for tests and examples.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	queue    []step
	repeat   *core.LLMResponse
	requests []*core.LLMRequest
}

// NewScriptedModel constructs a model that replies with responses in order.
func NewScriptedModel(name string, responses ...*core.LLMResponse) *ScriptedModel {
	m := &ScriptedModel{name: name}
	m.Enqueue(responses...)
	return m
}

// Enqueue appends responses to the script.
func (m *ScriptedModel) Enqueue(responses ...*core.LLMResponse) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.queue = append(m.queue, step{resp: r})
	}
	return m
}

// EnqueueError appends a transport failure to the script.
func (m *ScriptedModel) EnqueueError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, step{err: err})
	return m
}

// Repeat sets the response returned after the script is exhausted.
func (m *ScriptedModel) Repeat(resp *core.LLMResponse) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeat = resp
	return m
}

// Name implements core.LLM.
func (m *ScriptedModel) Name() string { return m.name }

// Calls returns how many generate calls were made.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns snapshots of every received request.
func (m *ScriptedModel) Requests() []*core.LLMRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*core.LLMRequest(nil), m.requests...)
}

// Generate implements core.LLM.
func (m *ScriptedModel) Generate(ctx context.Context, req *core.LLMRequest) (*core.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req.Clone())

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.resp.Clone(), nil
	}

	if m.repeat != nil {
		return m.repeat.Clone(), nil
	}

	return nil, fmt.Errorf("scripted model %s: script exhausted after %d calls", m.name, len(m.requests)-1)
}

// GenerateStream implements core.LLM.
func (m *ScriptedModel) GenerateStream(ctx context.Context, req *core.LLMRequest) (<-chan *core.LLMResponse, <-chan error) {
	resp, err := m.Generate(ctx, req)
	return StreamOf(ctx, resp, err)
}

// CountTokens implements core.LLM.
func (m *ScriptedModel) CountTokens(_ context.Context, req *core.LLMRequest) (int, error) {
	return EstimateTokens(req), nil
}
