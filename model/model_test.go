package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/core"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	m := NewScriptedModel("scripted")
	r.Register("default", m)

	got, err := r.Get("default")
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistry_FactoryIsMemoised(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.RegisterFactory("lazy", func() (core.LLM, error) {
		calls++
		return NewEchoModel("lazy"), nil
	})

	assert.Equal(t, 0, calls, "factory must not run at registration")

	a, err := r.Get("lazy")
	require.NoError(t, err)
	b, err := r.Get("lazy")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"lazy"}, r.Names())
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("broken", func() (core.LLM, error) { return nil, errors.New("no api key") })

	_, err := r.Get("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no api key")
}

func TestScriptedModel(t *testing.T) {
	ctx := context.Background()
	m := NewScriptedModel("s", core.NewTextResponse("one")).EnqueueError(errors.New("overloaded"))

	resp, err := m.Generate(ctx, &core.LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "one", resp.Primary().Text())

	_, err = m.Generate(ctx, &core.LLMRequest{})
	assert.EqualError(t, err, "overloaded")

	_, err = m.Generate(ctx, &core.LLMRequest{})
	assert.ErrorContains(t, err, "script exhausted")

	m.Repeat(core.NewTextResponse("again"))
	resp, err = m.Generate(ctx, &core.LLMRequest{Model: "x"})
	require.NoError(t, err)
	assert.Equal(t, "again", resp.Primary().Text())

	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "x", m.Requests()[3].Model)
}

func TestScriptedModel_StreamEmitsPartialsThenFinal(t *testing.T) {
	m := NewScriptedModel("s", core.NewTextResponse("the answer is 40"))

	out, errCh := m.GenerateStream(context.Background(), &core.LLMRequest{})

	var partials []string
	var final *core.LLMResponse
	for r := range out {
		if r.Partial {
			partials = append(partials, r.Primary().Text())
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)

	require.NotNil(t, final)
	assert.Equal(t, "the answer is 40", final.Primary().Text())
	assert.Equal(t, []string{"the ", "answer ", "is ", "40"}, partials)
}

func TestEchoModel(t *testing.T) {
	m := NewEchoModel("echo")
	m.AddResponse("hi", "hello there")

	resp, err := m.Generate(context.Background(), &core.LLMRequest{Contents: []core.Content{*core.NewTextContent(core.RoleUser, "hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Primary().Text())
	assert.NotNil(t, resp.Usage)

	resp, err = m.Generate(context.Background(), &core.LLMRequest{Contents: []core.Content{*core.NewTextContent(core.RoleUser, "ping")}})
	require.NoError(t, err)
	assert.Equal(t, "Echo: ping", resp.Primary().Text())

	_, err = m.Generate(context.Background(), &core.LLMRequest{})
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	req := &core.LLMRequest{
		SystemInstruction: "abcd",
		Contents:          []core.Content{*core.NewTextContent(core.RoleUser, "efgh")},
	}
	assert.Equal(t, 2, EstimateTokens(req))
	assert.Equal(t, 0, EstimateTokens(nil))
}
