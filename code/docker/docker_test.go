package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flowmesh/code"
)

type fakeRuntime struct {
	config  *container.Config
	host    *container.HostConfig
	status  container.WaitResponse
	block   bool
	stdout  string
	stderr  string
	removed []string
}

func (f *fakeRuntime) ContainerCreate(_ context.Context, config *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.config = config
	f.host = host
	return container.CreateResponse{ID: "c-1"}, nil
}

func (f *fakeRuntime) ContainerStart(context.Context, string, container.StartOptions) error { return nil }

func (f *fakeRuntime) ContainerWait(ctx context.Context, _ string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.block {
		go func() {
			<-ctx.Done()
			errCh <- ctx.Err()
		}()
		return statusCh, errCh
	}
	statusCh <- f.status
	return statusCh, errCh
}

func (f *fakeRuntime) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeRuntime) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func newTestExecutor(t *testing.T, rt *fakeRuntime, optFns ...func(o *Options)) *Executor {
	t.Helper()
	e, err := New(append([]func(o *Options){func(o *Options) { o.Runtime = rt }}, optFns...)...)
	require.NoError(t, err)
	return e
}

func TestExecutor_RunsIsolatedContainer(t *testing.T) {
	rt := &fakeRuntime{stdout: "40\n"}
	e := newTestExecutor(t, rt)

	res, err := e.Execute(context.Background(), "python", "print(15+25)")
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, "40\n", res.Stdout)
	assert.Equal(t, "python:3.12-slim", rt.config.Image)
	assert.Equal(t, []string{"python", "-c", "print(15+25)"}, []string(rt.config.Cmd))
	assert.True(t, rt.config.NetworkDisabled)
	assert.Equal(t, container.NetworkMode("none"), rt.host.NetworkMode)
	assert.Equal(t, int64(256*1024*1024), rt.host.Resources.Memory)
	assert.Equal(t, []string{"c-1"}, rt.removed)
}

func TestExecutor_NonZeroExit(t *testing.T) {
	rt := &fakeRuntime{status: container.WaitResponse{StatusCode: 1}, stderr: "NameError: x\n"}
	e := newTestExecutor(t, rt)

	res, err := e.Execute(context.Background(), "python", "x")
	require.NoError(t, err)

	assert.Equal(t, "exit status 1", res.Error)
	assert.Equal(t, "NameError: x\n", res.Stderr)
}

func TestExecutor_Timeout(t *testing.T) {
	rt := &fakeRuntime{block: true}
	e := newTestExecutor(t, rt, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	res, err := e.Execute(context.Background(), "sh", "sleep 60")
	require.NoError(t, err)

	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, []string{"c-1"}, rt.removed)
}

func TestExecutor_UnsupportedLanguage(t *testing.T) {
	e := newTestExecutor(t, &fakeRuntime{})

	_, err := e.Execute(context.Background(), "ruby", "puts 1")
	assert.True(t, errors.Is(err, code.ErrUnsupportedLanguage))
}
