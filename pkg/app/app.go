package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	"github.com/computerscienceiscool/llm-autorun/pkg/controller"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
	"github.com/computerscienceiscool/llm-autorun/pkg/history"
	"github.com/computerscienceiscool/llm-autorun/pkg/llm"
	"github.com/computerscienceiscool/llm-autorun/pkg/repository"
	"github.com/computerscienceiscool/llm-autorun/pkg/sandbox"
	"github.com/computerscienceiscool/llm-autorun/pkg/scanner"
)

// App represents the main application
type App struct {
	config    *config.Config
	logger    *slog.Logger
	completer llm.Completer
	extractor *scanner.Extractor
	policy    *sandbox.DenyPolicy
	audit     *sandbox.AuditLogger
	runner    evaluator.Runner
	history   *history.Store
	closers   []func() error

	in        io.Reader
	out       io.Writer
	sessionID string

	commandsRun  int
	workDirReady bool
}

// preparer is implemented by runners that need a one-off setup step (image pull)
type preparer interface {
	Prepare(ctx context.Context) error
}

// RepoRequest describes one repository run
type RepoRequest struct {
	URL       string
	ReadmeURL string // optional; the clone's README is used otherwise
	Prompt    string
}

// RunChat reads prompts until EOF or "q" and runs each one in the working
// directory. The directory stays locked for the whole session.
func (a *App) RunChat(ctx context.Context) error {
	if a.config.Verbose {
		a.printVerboseInfo()
	}
	dir := a.workDir()
	if err := a.prepareWorkDir(); err != nil {
		a.printError(err)
		return err
	}
	lock, err := a.lock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	fmt.Fprintln(a.out, "LLM Autorun - Chat Mode")
	fmt.Fprintf(a.out, "Commands run in %s. Type q to quit.\n", dir)

	reader := bufio.NewScanner(a.in)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(a.out, "\n> ")
		if !reader.Scan() {
			fmt.Fprintln(a.out)
			return reader.Err()
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "q") {
			return nil
		}

		if err := a.runPrompt(ctx, dir, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// a failed prompt does not end the session
			a.logger.Debug("prompt finished with error", "err", err)
		}
	}
}

// RunPrompt runs one request against the working directory
func (a *App) RunPrompt(ctx context.Context, prompt string) error {
	dir := a.workDir()
	if err := a.prepareWorkDir(); err != nil {
		a.printError(err)
		return err
	}
	lock, err := a.lock(dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	return a.runPrompt(ctx, dir, prompt)
}

func (a *App) runPrompt(ctx context.Context, dir, prompt string) error {
	req := controller.Request{Mode: controller.ModeChat, Target: dir, Prompt: prompt}
	return a.run(ctx, req, dir, a.config.ChatMaxAttempts)
}

// RunRepo clones the repository and drives it to the requested outcome
func (a *App) RunRepo(ctx context.Context, rr RepoRequest) error {
	if a.config.Verbose {
		a.printVerboseInfo()
	}

	// held across the clone
	lock, err := a.lock(filepath.Join(a.config.WorkspaceDir, repository.Name(rr.URL)))
	if err != nil {
		return err
	}
	defer lock.Release()

	fmt.Fprintf(a.out, "=== CLONING: %s ===\n", rr.URL)
	var progress io.Writer
	if a.config.Verbose {
		progress = os.Stderr
	}
	dir, err := repository.Clone(ctx, rr.URL, a.config.WorkspaceDir, progress)
	if err != nil {
		a.printError(err)
		return err
	}
	fmt.Fprintf(a.out, "Cloned into %s\n", dir)

	req := controller.Request{
		Mode:   controller.ModeRepo,
		Target: rr.URL,
		Prompt: rr.Prompt,
		Readme: func(ctx context.Context) (string, error) {
			if rr.ReadmeURL != "" {
				return repository.FetchReadme(ctx, nil, rr.ReadmeURL, a.config.ReadmeTimeout)
			}
			return repository.ReadReadme(dir)
		},
	}
	return a.run(ctx, req, dir, a.config.MaxAttempts)
}

func (a *App) lock(dir string) (*sandbox.DirLock, error) {
	lockDir := a.config.LockDir
	if lockDir == "" {
		lockDir = config.DefaultLockDir()
	}
	lock, err := sandbox.AcquireDirLock(lockDir, dir)
	if err != nil {
		a.printError(err)
		return nil, err
	}
	return lock, nil
}

// run drives one request through the controller; the caller holds the dir lock
func (a *App) run(ctx context.Context, req controller.Request, dir string, maxAttempts int) error {
	if p, ok := a.runner.(preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			a.printError(err)
			return err
		}
	}

	start := time.Now()
	exec := evaluator.NewExecutor(evaluator.ExecutorOptions{
		Runner:    a.runner,
		Policy:    a.policy,
		Audit:     a.audit,
		Logger:    a.logger,
		SessionID: a.sessionID,
		Dir:       dir,
		MaxLength: a.config.MaxCommandLength,
		Hooks:     a.executorHooks(),
	})

	var recorder controller.Recorder
	if a.history != nil {
		recorder = a.history
	}
	ctrl := controller.New(a.completer, a.extractor, exec, controller.Options{
		MaxAttempts: maxAttempts,
		RetryPause:  a.config.RetryPause,
		ReadmeLimit: a.config.ReadmeLimit,
		Model:       a.config.APIModel,
		Logger:      a.logger,
		Recorder:    recorder,
		Hooks:       a.controllerHooks(),
	})

	out, runErr := ctrl.Run(ctx, req)
	executed := exec.GetCommandsRun()
	a.commandsRun += executed

	if errors.Is(runErr, apperrors.ErrExtractionEmpty) {
		// no runnable command: show what the model said instead
		fmt.Fprint(a.out, "=== NO COMMANDS FOUND ===\n")
		fmt.Fprint(a.out, ensureNewline(out.LastReply))
		fmt.Fprint(a.out, "=== END RESPONSE ===\n")
	} else if runErr != nil {
		a.printError(runErr)
	}
	if a.config.InitGit || req.Mode == controller.ModeRepo {
		a.printChanges(dir)
	}
	a.printSummary(out, executed, start)
	return runErr
}

func (a *App) prepareWorkDir() error {
	if a.workDirReady {
		return nil
	}
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	if a.config.InitGit {
		if _, err := repository.InitLocal(dir); err != nil {
			return fmt.Errorf("failed to initialise git in %s: %w", dir, err)
		}
	}
	a.workDirReady = true
	return nil
}

func (a *App) workDir() string {
	if a.config.WorkDir == "" {
		return "."
	}
	return a.config.WorkDir
}

func (a *App) executorHooks() evaluator.Hooks {
	return evaluator.Hooks{
		OnStart: func(index, total int, command string) {
			fmt.Fprintf(a.out, "=== COMMAND %d/%d: %s ===\n", index, total, command)
		},
		OnLine: func(line string) {
			fmt.Fprintf(a.out, "│ %s\n", line)
		},
		OnResult: func(index, total int, r evaluator.ExecutionResult) {
			switch r.Status {
			case evaluator.StatusOK:
				fmt.Fprintf(a.out, "=== EXEC SUCCESSFUL (%.3fs) ===\n", r.Duration.Seconds())
			case evaluator.StatusBlocked:
				fmt.Fprintf(a.out, "=== SKIPPED: %s ===\n", r.BlockedBy)
			case evaluator.StatusStartError:
				fmt.Fprint(a.out, "=== ERROR: RUNNER_START ===\n")
				fmt.Fprintf(a.out, "Message: %s\n", evaluator.SanitizeText(r.CrashError))
			default:
				fmt.Fprintf(a.out, "=== EXEC FAILED: exit code %d ===\n", r.ExitCode)
				if stderr := strings.TrimSpace(r.Stderr); stderr != "" {
					fmt.Fprintf(a.out, "Stderr: %s\n", stderr)
				}
				if r.TimedOut {
					fmt.Fprintf(a.out, "Timed out after %.0fs\n", r.Duration.Seconds())
				}
			}
		},
	}
}

func (a *App) controllerHooks() controller.Hooks {
	return controller.Hooks{
		OnState: func(from, to controller.State) {
			if to == controller.StateDiagnosing {
				fmt.Fprint(a.out, "=== DIAGNOSING FAILURES ===\n")
			}
		},
		OnCommands: func(attempt int, commands []string) {
			fmt.Fprintf(a.out, "=== ATTEMPT %d: %d command(s) ===\n", attempt, len(commands))
			for i, c := range commands {
				fmt.Fprintf(a.out, "%d. %s\n", i+1, c)
			}
		},
	}
}

func (a *App) printError(err error) {
	code := strings.SplitN(err.Error(), ":", 2)[0]
	switch {
	case apperrors.IsRemote(err):
		code = "REMOTE"
	case errors.Is(err, apperrors.ErrCommandFailed):
		code = "COMMAND_FAILED"
	case apperrors.IsRunnerStart(err):
		code = "RUNNER_START"
		err = evaluator.SanitizeError(err)
	case errors.Is(err, apperrors.ErrDirLocked):
		code = "DIR_LOCKED"
	}
	fmt.Fprintf(a.out, "=== ERROR: %s ===\n", code)
	fmt.Fprintf(a.out, "Message: %s\n", err.Error())
	fmt.Fprint(a.out, "=== END ERROR ===\n")
}

func (a *App) printChanges(dir string) {
	changes, err := repository.Changes(dir, a.config.HistoryPath, a.config.AuditLogPath, a.config.LogFile)
	if err != nil {
		a.logger.Debug("no change list", "dir", dir, "err", err)
		return
	}
	if len(changes) == 0 {
		return
	}
	fmt.Fprint(a.out, "=== CHANGED FILES ===\n")
	for _, c := range changes {
		fmt.Fprintln(a.out, c)
	}
	fmt.Fprint(a.out, "=== END CHANGED FILES ===\n")
}

func (a *App) printSummary(out controller.Outcome, executed int, start time.Time) {
	fmt.Fprint(a.out, "=== LLM AUTORUN COMPLETE ===\n")
	fmt.Fprintf(a.out, "Status: %s\n", out.State)
	fmt.Fprintf(a.out, "Attempts: %d\n", len(out.Attempts))
	fmt.Fprintf(a.out, "Commands executed: %d\n", executed)
	fmt.Fprintf(a.out, "Time elapsed: %.2fs\n", time.Since(start).Seconds())
	if a.history != nil {
		fmt.Fprintf(a.out, "Run: %s\n", out.RunID)
	}
	fmt.Fprint(a.out, "=== END ===\n")
}

// printVerboseInfo prints verbose configuration information
func (a *App) printVerboseInfo() {
	fmt.Fprintf(os.Stderr, "API endpoint: %s\n", a.config.APIURL)
	fmt.Fprintf(os.Stderr, "Model: %s\n", a.config.APIModel)
	fmt.Fprintf(os.Stderr, "Exec backend: %s\n", a.config.ExecBackend)
	if a.config.ExecBackend == "docker" {
		fmt.Fprintf(os.Stderr, "Exec image: %s\n", a.config.ExecImage)
	} else {
		fmt.Fprintf(os.Stderr, "Shells: %v\n", a.config.ExecShells)
	}
	fmt.Fprintf(os.Stderr, "Exec timeout: %v\n", a.config.ExecTimeout)
	fmt.Fprintf(os.Stderr, "Max attempts: %d (chat %d)\n", a.config.MaxAttempts, a.config.ChatMaxAttempts)
	fmt.Fprintf(os.Stderr, "Deny patterns: %d\n", a.policy.Len())
	if a.config.AuditLogPath != "" {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", a.config.AuditLogPath)
	}
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// CommandsRun returns how many commands reached a runner across the session
func (a *App) CommandsRun() int {
	return a.commandsRun
}

// SessionID identifies this process in the audit log
func (a *App) SessionID() string {
	return a.sessionID
}

// Close releases history, audit, docker and log resources
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
