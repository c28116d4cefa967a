package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/flowmesh/core"
)

// Provider supplies instruction text at run time, e.g. derived from session
// state or the active branch.
type Provider interface {
	Instruction(*core.InvocationContext) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(*core.InvocationContext) (string, error)

// Instruction implements Provider.
func (f ProviderFunc) Instruction(ic *core.InvocationContext) (string, error) { return f(ic) }

// Instruction is the system prompt of an LLMAgent: static text, a provider,
// or several of those joined by blank lines. The resolved text may contain
// text/template placeholders that the instructions processor renders
// against session state.
type Instruction struct {
	text     string
	provider Provider
	parts    []Instruction
}

// NewInstructionFromText creates a static Instruction.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction resolved by p.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction resolved by f.
func NewInstructionFromFunc(f func(*core.InvocationContext) (string, error)) Instruction {
	return Instruction{provider: ProviderFunc(f)}
}

// NewInstructionFromState reads the instruction from a session state key.
// A missing key resolves to fallback.
func NewInstructionFromState(key, fallback string) Instruction {
	return NewInstructionFromFunc(func(ic *core.InvocationContext) (string, error) {
		v, ok := ic.GetState(key)
		if !ok {
			return fallback, nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("instruction state %q holds %T, want string", key, v)
		}
		return s, nil
	})
}

// JoinInstructions concatenates instructions in order, skipping empty ones.
func JoinInstructions(parts ...Instruction) Instruction {
	return Instruction{parts: parts}
}

// IsStatic reports whether the instruction resolves without a provider.
func (i Instruction) IsStatic() bool {
	if i.provider != nil {
		return false
	}
	for _, p := range i.parts {
		if !p.IsStatic() {
			return false
		}
	}
	return true
}

// Resolve returns the instruction text.
func (i Instruction) Resolve(ic *core.InvocationContext) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(ic)
	case i.parts != nil:
		texts := make([]string, 0, len(i.parts))
		for n, p := range i.parts {
			text, err := p.Resolve(ic)
			if err != nil {
				return "", fmt.Errorf("instruction part %d: %w", n, err)
			}
			if strings.TrimSpace(text) != "" {
				texts = append(texts, text)
			}
		}
		return strings.Join(texts, "\n\n"), nil
	default:
		return i.text, nil
	}
}
