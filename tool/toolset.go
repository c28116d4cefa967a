package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/flowmesh/core"
)

var (
	// ErrToolNotFound is returned when a call names an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// CallFunc executes one resolved tool call.
type CallFunc func(tc *core.ToolContext, t Tool, args map[string]any) (any, error)

// Middleware wraps every call executed through a Toolset, outside the
// tool's own hooks.
type Middleware func(next CallFunc) CallFunc

// Toolset is a name-indexed collection of tools. It resolves calls by name
// and mediates execution, invoking each tool's before/after hooks around its
// body. A Toolset is safe for concurrent use.
type Toolset struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	order      []string
	middleware []Middleware
}

// NewToolset creates a toolset from tools. Names must be unique.
func NewToolset(tools ...Tool) (*Toolset, error) {
	ts := &Toolset{tools: map[string]Tool{}}
	for _, t := range tools {
		if err := ts.Add(t); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// MustToolset is NewToolset that panics on duplicate names.
func MustToolset(tools ...Tool) *Toolset {
	ts, err := NewToolset(tools...)
	if err != nil {
		panic(err)
	}
	return ts
}

// Add registers t.
func (ts *Toolset) Add(t Tool) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	ts.tools[t.Name()] = t
	ts.order = append(ts.order, t.Name())

	return nil
}

// Use appends middleware; the first registered is the outermost.
func (ts *Toolset) Use(mw ...Middleware) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.middleware = append(ts.middleware, mw...)
}

// Get resolves a tool by name.
func (ts *Toolset) Get(name string) (Tool, bool) {
	if ts == nil {
		return nil, false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tools)
}

// Names returns tool names in registration order.
func (ts *Toolset) Names() []string {
	if ts == nil {
		return nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]string(nil), ts.order...)
}

// Tools returns tools in registration order.
func (ts *Toolset) Tools() []Tool {
	if ts == nil {
		return nil
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]Tool, 0, len(ts.order))
	for _, n := range ts.order {
		out = append(out, ts.tools[n])
	}
	return out
}

// Declarations returns the model-facing declarations sorted by name.
func (ts *Toolset) Declarations() []core.ToolDeclaration {
	tools := ts.Tools()
	decls := make([]core.ToolDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, Declaration(t))
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Merge returns a new toolset holding ts's tools followed by those of other
// whose names are not already present. Middleware of ts is kept.
func (ts *Toolset) Merge(other *Toolset) *Toolset {
	out := &Toolset{tools: map[string]Tool{}}
	for _, src := range []*Toolset{ts, other} {
		for _, t := range src.Tools() {
			if _, exists := out.tools[t.Name()]; !exists {
				out.tools[t.Name()] = t
				out.order = append(out.order, t.Name())
			}
		}
	}
	if ts != nil {
		ts.mu.RLock()
		out.middleware = append(out.middleware, ts.middleware...)
		ts.mu.RUnlock()
	}
	return out
}

// Execute resolves call by name, decodes its JSON arguments and runs the
// tool through middleware and hooks. Unknown names yield ErrToolNotFound.
func (ts *Toolset) Execute(tc *core.ToolContext, call core.FunctionCall) (any, error) {
	t, ok := ts.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}

	args, err := DecodeArguments(call.Arguments)
	if err != nil {
		return nil, &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeArguments}
	}

	ts.mu.RLock()
	next := CallFunc(invoke)
	for i := len(ts.middleware) - 1; i >= 0; i-- {
		next = ts.middleware[i](next)
	}
	ts.mu.RUnlock()

	return next(tc, t, args)
}

// DecodeArguments parses a serialized JSON argument object. Empty input
// decodes to an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func invoke(tc *core.ToolContext, t Tool, args map[string]any) (result any, err error) {
	var (
		before []BeforeHook
		after  []AfterHook
	)
	if h, ok := t.(Hooked); ok {
		before, after = h.BeforeHooks(), h.AfterHooks()
	}

	for _, hook := range before {
		newArgs, short, herr := hook(tc, args)
		if herr != nil {
			err = herr
			break
		}
		if newArgs != nil {
			args = newArgs
		}
		if short != nil {
			result = short
			break
		}
	}

	if result == nil && err == nil {
		result, err = callRecovered(tc, t, args)
	}

	for _, hook := range after {
		result, err = hook(tc, args, result, err)
	}

	return result, err
}

func callRecovered(tc *core.ToolContext, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ToolError{Tool: t.Name(), Message: fmt.Sprintf("panic: %v", r), Code: CodePanic}
		}
	}()
	return t.Call(tc, args)
}
