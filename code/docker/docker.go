// Package docker runs model-authored code in throwaway Docker containers.
// Every execution gets a fresh container with networking disabled and a
// memory limit; the container is removed once its logs are collected.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/hupe1980/flowmesh/code"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
)

// Runtime is the subset of the Docker engine API the executor uses.
// *client.Client satisfies it.
type Runtime interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Image describes how a language is run inside a container.
type Image struct {
	Name string
	// Cmd receives the snippet as its final argument.
	Cmd []string
}

// Options configures an Executor.
type Options struct {
	Images   map[string]Image
	Timeout  time.Duration
	MemoryMB int64
	Runtime  Runtime
	Logger   logging.Logger
}

// Executor implements core.CodeExecutor with Docker.
type Executor struct {
	runtime Runtime
	opts    Options
}

var _ core.CodeExecutor = (*Executor)(nil)

// New creates an Executor. Without Options.Runtime a client is built from
// the environment with API version negotiation.
func New(optFns ...func(o *Options)) (*Executor, error) {
	opts := Options{
		Images: map[string]Image{
			"python": {Name: "python:3.12-slim", Cmd: []string{"python", "-c"}},
			"bash":   {Name: "bash:5", Cmd: []string{"bash", "-c"}},
			"sh":     {Name: "alpine:3", Cmd: []string{"sh", "-c"}},
		},
		Timeout:  30 * time.Second,
		MemoryMB: 256,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	rt := opts.Runtime
	if rt == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("create docker client: %w", err)
		}
		rt = cli
	}

	return &Executor{runtime: rt, opts: opts}, nil
}

// Execute implements core.CodeExecutor.
func (e *Executor) Execute(ctx context.Context, language, src string) (core.CodeResult, error) {
	img, ok := e.opts.Images[language]
	if !ok {
		return core.CodeResult{}, fmt.Errorf("%w: %s", code.ErrUnsupportedLanguage, language)
	}

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	created, err := e.runtime.ContainerCreate(runCtx,
		&container.Config{
			Image:           img.Name,
			Cmd:             append(append([]string(nil), img.Cmd...), src),
			NetworkDisabled: true,
			Labels:          map[string]string{"flowmesh.managed-by": "code-executor"},
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources:   container.Resources{Memory: e.opts.MemoryMB * 1024 * 1024},
		},
		nil, nil, "",
	)
	if err != nil {
		return core.CodeResult{}, fmt.Errorf("create container: %w", err)
	}

	// Cleanup must outlive a cancelled run context.
	defer func() {
		if err := e.runtime.ContainerRemove(context.WithoutCancel(ctx), created.ID, container.RemoveOptions{Force: true}); err != nil {
			e.opts.Logger.Warn("code.docker.remove", "container_id", created.ID, "error", err.Error())
		}
	}()

	start := time.Now()

	if err := e.runtime.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return core.CodeResult{}, fmt.Errorf("start container: %w", err)
	}

	var res core.CodeResult

	statusCh, errCh := e.runtime.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("execution timed out after %s", e.opts.Timeout)
			break
		}
		return core.CodeResult{}, fmt.Errorf("wait container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			res.Error = status.Error.Message
		} else if status.StatusCode != 0 {
			res.Error = fmt.Sprintf("exit status %d", status.StatusCode)
		}
	}

	logs, err := e.runtime.ContainerLogs(context.WithoutCancel(ctx), created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return core.CodeResult{}, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && !errors.Is(err, io.EOF) {
		return core.CodeResult{}, fmt.Errorf("read container output: %w", err)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	e.opts.Logger.Debug("code.docker.executed",
		"language", language,
		"image", img.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", res.OK(),
	)

	return res, nil
}
