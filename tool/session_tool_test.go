package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/artifact"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/memory"
)

func TestSessionTool_Operations(t *testing.T) {
	ic := core.NewInvocationContext(context.Background(), core.NewSession("sess-1"), nil, core.RunConfig{}, core.Services{
		Artifacts: artifact.NewInMemoryStore(),
		Memory:    memory.NewInMemoryStore(),
	}, logging.NoOpLogger{})
	tc := core.NewToolContext(ic, "call-1")
	ts := MustToolset(NewSessionTool())

	call := func(args string) map[string]any {
		t.Helper()
		res, err := ts.Execute(tc, core.FunctionCall{ID: "call-1", Name: SessionToolName, Arguments: args})
		require.NoError(t, err)
		return res.(map[string]any)
	}

	assert.Equal(t, true, call(`{"operation":"set_state","key":"city","value":"Berlin"}`)["updated"])
	got := call(`{"operation":"get_state","key":"city"}`)
	assert.Equal(t, "Berlin", got["value"])
	assert.Equal(t, true, got["found"])

	assert.Equal(t, 1, call(`{"operation":"save_artifact","name":"notes.txt","data":"sunny"}`)["version"])
	assert.Equal(t, "sunny", call(`{"operation":"load_artifact","name":"notes.txt"}`)["data"])
	assert.Equal(t, []string{"notes.txt"}, call(`{"operation":"list_artifacts"}`)["names"])

	id := call(`{"operation":"store_memory","content":"user prefers celsius"}`)["id"]
	assert.NotEmpty(t, id)
	results := call(`{"operation":"search_memory","query":"celsius"}`)["results"].([]core.SearchResult)
	require.Len(t, results, 1)

	call(`{"operation":"skip_summarization"}`)

	acts := tc.Actions()
	assert.Equal(t, "Berlin", acts.StateDelta["city"])
	assert.Equal(t, 1, acts.ArtifactDelta["notes.txt"])
	assert.True(t, acts.SkipSummarization)
}

func TestSessionTool_RejectsBadArguments(t *testing.T) {
	ts := MustToolset(NewSessionTool())
	tc := newToolContext(t, "call-1")

	tests := []struct {
		name string
		args string
	}{
		{name: "unknown operation", args: `{"operation":"drop_tables"}`},
		{name: "missing key", args: `{"operation":"get_state"}`},
		{name: "missing operation", args: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Execute(tc, core.FunctionCall{ID: "call-1", Name: SessionToolName, Arguments: tt.args})
			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, CodeValidation, te.Code)
		})
	}
}

func TestSessionTool_MissingService(t *testing.T) {
	ts := MustToolset(NewSessionTool())

	_, err := ts.Execute(newToolContext(t, "call-1"), core.FunctionCall{ID: "call-1", Name: SessionToolName, Arguments: `{"operation":"list_artifacts"}`})
	assert.ErrorContains(t, err, "artifact service not configured")
}
