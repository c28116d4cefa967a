package code

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// ErrUnsupportedLanguage is returned for languages without a configured interpreter.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// LocalExecutorOptions configures a LocalExecutor.
type LocalExecutorOptions struct {
	// Interpreters maps a language to the command that receives the snippet
	// as its final argument.
	Interpreters map[string][]string
	// Timeout bounds each execution. Zero disables the limit.
	Timeout time.Duration
	// WorkDir is the working directory of the interpreter process.
	WorkDir string
	Logger  logging.Logger
}

// LocalExecutor executes snippets as host subprocesses.
type LocalExecutor struct {
	opts LocalExecutorOptions
}

var _ core.CodeExecutor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a LocalExecutor with python3, bash and sh
// interpreters and a 30 second timeout.
func NewLocalExecutor(optFns ...func(o *LocalExecutorOptions)) *LocalExecutor {
	opts := LocalExecutorOptions{
		Interpreters: map[string][]string{
			"python": {"python3", "-c"},
			"bash":   {"bash", "-c"},
			"sh":     {"sh", "-c"},
		},
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LocalExecutor{opts: opts}
}

// Execute implements core.CodeExecutor. A program that exits non-zero or
// times out yields a CodeResult with Error set; a missing interpreter is a
// Go error.
func (e *LocalExecutor) Execute(ctx context.Context, language, code string) (core.CodeResult, error) {
	argv, ok := e.opts.Interpreters[language]
	if !ok || len(argv) == 0 {
		return core.CodeResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), argv[1:]...), code)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = e.opts.WorkDir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	res := core.CodeResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = fmt.Sprintf("execution timed out after %s", e.opts.Timeout)
	case errors.As(err, &exitErr):
		res.Error = fmt.Sprintf("exit status %d", exitErr.ExitCode())
	default:
		return core.CodeResult{}, fmt.Errorf("run %s: %w", argv[0], err)
	}

	e.opts.Logger.Debug("code.local.executed",
		"language", language,
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", res.OK(),
	)

	return res, nil
}
