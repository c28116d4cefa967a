package tool

import (
	"fmt"

	"github.com/hupe1980/flowmesh/core"
)

// SessionToolName is the name of the tool built by NewSessionTool.
const SessionToolName = "session"

// SessionArgs are the arguments accepted by the session tool.
type SessionArgs struct {
	Operation string         `json:"operation" jsonschema:"enum=get_state,enum=set_state,enum=save_artifact,enum=load_artifact,enum=list_artifacts,enum=search_memory,enum=store_memory,enum=skip_summarization,description=Operation to perform"`
	Key       string         `json:"key,omitempty" jsonschema:"description=State key for get_state and set_state"`
	Value     any            `json:"value,omitempty" jsonschema:"description=Value for set_state"`
	Name      string         `json:"name,omitempty" jsonschema:"description=Artifact name"`
	Data      string         `json:"data,omitempty" jsonschema:"description=Artifact text for save_artifact"`
	Query     string         `json:"query,omitempty" jsonschema:"description=Memory search query"`
	Content   string         `json:"content,omitempty" jsonschema:"description=Text to remember"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"description=Metadata stored with a memory"`
	Limit     int            `json:"limit,omitempty" jsonschema:"description=Maximum search results (default 10)"`
}

// NewSessionTool exposes the tool context's session operations to a model:
// state, artifacts, memory and skip_summarization. Transfer and escalation
// have dedicated tools.
func NewSessionTool(optFns ...func(o *FunctionOptions)) *FunctionTool {
	return NewTypedFunctionTool(SessionToolName,
		"Read and write session state, save and load artifacts, and search or store memories.",
		runSessionOperation, optFns...)
}

func runSessionOperation(tc *core.ToolContext, args SessionArgs) (any, error) {
	required := func(field, value string) error {
		if value == "" {
			return NewToolError(SessionToolName, fmt.Sprintf("field '%s' is required for %s", field, args.Operation), CodeValidation)
		}
		return nil
	}

	switch args.Operation {
	case "get_state":
		if err := required("key", args.Key); err != nil {
			return nil, err
		}
		v, ok := tc.GetState(args.Key)
		return map[string]any{"key": args.Key, "value": v, "found": ok}, nil

	case "set_state":
		if err := required("key", args.Key); err != nil {
			return nil, err
		}
		tc.SetState(args.Key, args.Value)
		return map[string]any{"key": args.Key, "updated": true}, nil

	case "save_artifact":
		if err := required("name", args.Name); err != nil {
			return nil, err
		}
		version, err := tc.SaveArtifact(args.Name, []byte(args.Data))
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": args.Name, "version": version}, nil

	case "load_artifact":
		if err := required("name", args.Name); err != nil {
			return nil, err
		}
		data, err := tc.LoadArtifact(args.Name)
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": args.Name, "data": string(data)}, nil

	case "list_artifacts":
		names, err := tc.ListArtifacts()
		if err != nil {
			return nil, err
		}
		return map[string]any{"names": names}, nil

	case "search_memory":
		if err := required("query", args.Query); err != nil {
			return nil, err
		}
		limit := args.Limit
		if limit <= 0 {
			limit = 10
		}
		results, err := tc.SearchMemory(args.Query, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil

	case "store_memory":
		if err := required("content", args.Content); err != nil {
			return nil, err
		}
		id, err := tc.StoreMemory(args.Content, args.Metadata)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case "skip_summarization":
		tc.SkipSummarization()
		return map[string]any{"skip_summarization": true}, nil

	default:
		return nil, NewToolError(SessionToolName, fmt.Sprintf("unknown operation %q", args.Operation), CodeValidation)
	}
}
