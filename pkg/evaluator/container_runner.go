package evaluator

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/sandbox"
)

// ContainerRunner runs each command in a fresh locked-down Docker container
// with the working directory mounted at /workspace.
type ContainerRunner struct {
	client         sandbox.DockerAPI
	image          string
	shell          string
	memoryLimit    string
	cpuLimit       int
	network        bool
	timeout        time.Duration
	forwardSlashes bool
	progress       io.Writer

	prepareOnce sync.Once
	prepareErr  error
}

// NewContainerRunner builds a runner from configuration.
// progress receives image pull output and may be nil.
func NewContainerRunner(cli sandbox.DockerAPI, cfg *config.Config, progress io.Writer) *ContainerRunner {
	shell := "pwsh"
	if len(cfg.ExecShells) > 0 {
		shell = cfg.ExecShells[0]
	}
	return &ContainerRunner{
		client:         cli,
		image:          cfg.ExecImage,
		shell:          shell,
		memoryLimit:    cfg.ExecMemoryLimit,
		cpuLimit:       cfg.ExecCPULimit,
		network:        cfg.ExecNetwork,
		timeout:        cfg.ExecTimeout,
		forwardSlashes: cfg.ExecForwardSlashes,
		progress:       progress,
	}
}

// Prepare checks the daemon and pulls the image once per runner
func (r *ContainerRunner) Prepare(ctx context.Context) error {
	r.prepareOnce.Do(func() {
		if err := sandbox.CheckDockerAvailability(ctx, r.client); err != nil {
			r.prepareErr = &apperrors.RunnerStartError{Shell: "docker", Err: err}
			return
		}
		if err := sandbox.PullDockerImage(ctx, r.client, r.image, r.progress); err != nil {
			r.prepareErr = &apperrors.RunnerStartError{Shell: "docker", Err: err}
		}
	})
	return r.prepareErr
}

// Run executes command inside a container
func (r *ContainerRunner) Run(ctx context.Context, command, dir string, onLine func(string)) (ExecutionResult, error) {
	result := ExecutionResult{Command: command}

	if err := r.Prepare(ctx); err != nil {
		result.Status = StatusStartError
		result.CrashError = err.Error()
		return result, err
	}

	hostDir, err := filepath.Abs(dir)
	if err != nil {
		startErr := &apperrors.RunnerStartError{Shell: "docker", Err: fmt.Errorf("resolve work dir: %w", err)}
		result.Status = StatusStartError
		result.CrashError = startErr.Error()
		return result, startErr
	}

	if r.forwardSlashes {
		command = strings.ReplaceAll(command, `\`, "/")
	}

	stdout := newLineWriter(onLine)
	stderr := newLineWriter(nil)
	cr, err := sandbox.RunContainer(ctx, r.client, sandbox.ContainerConfig{
		Image:       r.image,
		Cmd:         ShellArgs(r.shell, command),
		HostDir:     hostDir,
		MemoryLimit: r.memoryLimit,
		CPULimit:    r.cpuLimit,
		Network:     r.network,
		Timeout:     r.timeout,
	}, stdout, stderr)
	stdout.Flush()

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.ExitCode = cr.ExitCode
	result.Duration = cr.Duration
	result.TimedOut = cr.TimedOut

	if err != nil {
		if ctx.Err() != nil {
			result.Status = StatusFailed
			return result, ctx.Err()
		}
		if apperrors.IsRunnerStart(err) {
			result.Status = StatusStartError
			result.CrashError = err.Error()
			return result, err
		}
		result.Status = StatusFailed
		result.ExitCode = -1
		result.CrashError = err.Error()
		return result, nil
	}

	if cr.ExitCode == 0 && !cr.TimedOut {
		result.Status = StatusOK
	} else {
		result.Status = StatusFailed
	}
	return result, nil
}
