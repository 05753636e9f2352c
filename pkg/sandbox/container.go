package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/pkg/stdcopy"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

const (
	containerWorkdir = "/workspace"
	containerUser    = "1000:1000"
	timeoutExitCode  = 124
)

// ContainerConfig holds configuration for running one command in a container
type ContainerConfig struct {
	Image       string
	Cmd         []string // full argv, shell included
	HostDir     string   // mounted read-write at /workspace
	MemoryLimit string
	CPULimit    int
	Network     bool
	User        string
	Timeout     time.Duration
}

// ContainerResult holds the result of container execution
type ContainerResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// RunContainer executes cfg.Cmd in a locked-down container. Output is demultiplexed
// into stdout and stderr as it arrives. Create and start failures are
// *errors.RunnerStartError; a timeout reports exit code 124 with TimedOut set.
func RunContainer(ctx context.Context, cli DockerAPI, cfg ContainerConfig, stdout, stderr io.Writer) (ContainerResult, error) {
	startTime := time.Now()
	result := ContainerResult{}

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	user := cfg.User
	if user == "" {
		user = containerUser
	}
	networkMode := container.NetworkMode("none")
	if cfg.Network {
		networkMode = "bridge"
	}

	containerConfig := &container.Config{
		Image:      cfg.Image,
		Cmd:        strslice.StrSlice(cfg.Cmd),
		WorkingDir: containerWorkdir,
		User:       user,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: networkMode,
		Resources: container.Resources{
			Memory:   parseMemoryLimit(cfg.MemoryLimit),
			NanoCPUs: int64(cfg.CPULimit) * 1000000000,
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: cfg.HostDir,
				Target: containerWorkdir,
			},
		},
		CapDrop:     strslice.StrSlice{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Tmpfs: map[string]string{
			"/tmp": "exec",
		},
	}

	resp, err := cli.ContainerCreate(runCtx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return result, &apperrors.RunnerStartError{Shell: "docker", Err: fmt.Errorf("failed to create container: %w", err)}
	}
	defer cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := cli.ContainerStart(runCtx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return result, &apperrors.RunnerStartError{Shell: "docker", Err: fmt.Errorf("failed to start container: %w", err)}
	}

	logReader, err := cli.ContainerLogs(runCtx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return result, fmt.Errorf("failed to get container logs: %w", err)
	}
	defer logReader.Close()

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	copyErr := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, logReader)
		copyErr <- err
	}()

	statusCh, errCh := cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil && runCtx.Err() == nil {
			return result, fmt.Errorf("error waiting for container: %w", err)
		}
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
	}

	if runCtx.Err() != nil {
		logReader.Close()
		<-copyErr
		result.Duration = time.Since(startTime)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.ExitCode = timeoutExitCode
		result.TimedOut = true
		return result, nil
	}

	// Follow ends once the container stops
	if err := <-copyErr; err != nil && !errors.Is(err, io.EOF) {
		return result, fmt.Errorf("failed to read container logs: %w", err)
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// parseMemoryLimit converts memory limit string (e.g., "512m") to bytes
func parseMemoryLimit(limit string) int64 {
	if limit == "" {
		return 0
	}
	if strings.HasSuffix(limit, "m") || strings.HasSuffix(limit, "M") {
		var mb int64
		fmt.Sscanf(limit, "%d", &mb)
		return mb * 1024 * 1024
	}
	if strings.HasSuffix(limit, "g") || strings.HasSuffix(limit, "G") {
		var gb int64
		fmt.Sscanf(limit, "%d", &gb)
		return gb * 1024 * 1024 * 1024
	}
	return 0
}
