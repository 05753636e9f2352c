package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
	"github.com/computerscienceiscool/llm-autorun/pkg/history"
	"github.com/computerscienceiscool/llm-autorun/pkg/llm"
	"github.com/computerscienceiscool/llm-autorun/pkg/logging"
	"github.com/computerscienceiscool/llm-autorun/pkg/sandbox"
	"github.com/computerscienceiscool/llm-autorun/pkg/scanner"
)

// Option overrides a collaborator built by Bootstrap
type Option func(*App)

// WithIO sets the prompt input and the console output
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// WithCompleter replaces the HTTP completion client
func WithCompleter(c llm.Completer) Option {
	return func(a *App) { a.completer = c }
}

// WithRunner replaces the configured command runner
func WithRunner(r evaluator.Runner) Option {
	return func(a *App) { a.runner = r }
}

// WithLogger replaces the logger built from configuration
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// Bootstrap initializes and returns a configured App
func Bootstrap(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		config:    cfg,
		in:        os.Stdin,
		out:       os.Stdout,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, closeLog, err := logging.New(logging.Options{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
		a.logger = logger
		a.closers = append(a.closers, closeLog)
	}

	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.config

	if a.completer == nil {
		key, err := llm.ResolveAPIKey(cfg.APIKey, cfg.APIKeyEnv)
		if err != nil {
			return err
		}
		a.completer = llm.NewClient(llm.Options{
			URL:         cfg.APIURL,
			Model:       cfg.APIModel,
			APIKey:      key,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.APITimeout,
			ArtifactDir: cfg.ArtifactDir,
			Logger:      a.logger,
		})
	}

	policy, err := sandbox.NewDenyPolicy(cfg.DenyPatterns)
	if err != nil {
		return fmt.Errorf("invalid deny pattern: %w", err)
	}
	a.policy = policy

	a.extractor = scanner.NewExtractor(scanner.ExtractorOptions{
		Verbs:          cfg.Verbs,
		FenceLanguages: cfg.FenceLanguages,
	})

	if cfg.AuditLogPath != "" {
		audit, err := sandbox.NewAuditLogger(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		a.audit = audit
		a.closers = append(a.closers, audit.Close)
	}

	if a.runner == nil {
		if err := a.initRunner(); err != nil {
			return err
		}
	}

	if cfg.HistoryEnabled && cfg.HistoryPath != "" {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			// history is a convenience; runs proceed without it
			a.logger.Warn("history disabled", "path", cfg.HistoryPath, "err", err)
		} else {
			a.history = store
			a.closers = append(a.closers, store.Close)
		}
	}

	a.logger.Debug("bootstrap complete",
		"session", a.sessionID,
		"backend", cfg.ExecBackend,
		"deny_patterns", policy.Len(),
		"history", a.history != nil,
	)
	return nil
}

func (a *App) initRunner() error {
	cfg := a.config
	switch cfg.ExecBackend {
	case "", config.DefaultExecBackend:
		a.runner = evaluator.NewShellRunner(cfg.ExecShells, cfg.ExecTimeout, cfg.ExecForwardSlashes)
	case "docker":
		cli, err := sandbox.NewDockerClient()
		if err != nil {
			return fmt.Errorf("failed to create docker client: %w", err)
		}
		a.closers = append(a.closers, cli.Close)
		a.runner = evaluator.NewContainerRunner(cli, cfg, os.Stderr)
	default:
		return fmt.Errorf("unknown exec backend %q (want local or docker)", cfg.ExecBackend)
	}
	return nil
}
