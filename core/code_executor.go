package core

import "context"

// CodeResult captures the outcome of a code execution. Error is set when the
// program ran but failed (non-zero exit, timeout); infrastructure failures are
// returned as Go errors instead.
type CodeResult struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the execution succeeded.
func (r CodeResult) OK() bool { return r.Error == "" }

// CodeExecutor runs model-authored code in some sandbox.
type CodeExecutor interface {
	Execute(ctx context.Context, language, code string) (CodeResult, error)
}
