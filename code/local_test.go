package code

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocalExecutor_Execute(t *testing.T) {
	requireShell(t)

	executor := NewLocalExecutor()

	tests := []struct {
		name       string
		code       string
		wantStdout string
		wantStderr string
		wantError  string
	}{
		{name: "success", code: "echo 40", wantStdout: "40\n"},
		{name: "stderr and exit code", code: "echo boom >&2; exit 3", wantStderr: "boom\n", wantError: "exit status 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := executor.Execute(context.Background(), "sh", tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStdout, res.Stdout)
			assert.Equal(t, tt.wantStderr, res.Stderr)
			assert.Equal(t, tt.wantError, res.Error)
			assert.Equal(t, tt.wantError == "", res.OK())
		})
	}
}

func TestLocalExecutor_Timeout(t *testing.T) {
	requireShell(t)

	executor := NewLocalExecutor(func(o *LocalExecutorOptions) { o.Timeout = 50 * time.Millisecond })

	res, err := executor.Execute(context.Background(), "sh", "sleep 5")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "timed out")
}

func TestLocalExecutor_UnsupportedLanguage(t *testing.T) {
	_, err := NewLocalExecutor().Execute(context.Background(), "cobol", "DISPLAY 'HI'")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestLocalExecutor_MissingInterpreter(t *testing.T) {
	executor := NewLocalExecutor(func(o *LocalExecutorOptions) {
		o.Interpreters = map[string][]string{"ghost": {"definitely-not-a-real-binary-xyz"}}
	})

	_, err := executor.Execute(context.Background(), "ghost", "noop")
	assert.Error(t, err)
}
