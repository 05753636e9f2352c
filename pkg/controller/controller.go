// Package controller drives the ask, extract, execute and diagnose loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/computerscienceiscool/llm-autorun/pkg/config"
	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
	"github.com/computerscienceiscool/llm-autorun/pkg/history"
	"github.com/computerscienceiscool/llm-autorun/pkg/llm"
	"github.com/computerscienceiscool/llm-autorun/pkg/logging"
	"github.com/computerscienceiscool/llm-autorun/pkg/repository"
	"github.com/computerscienceiscool/llm-autorun/pkg/scanner"
)

// Run modes
const (
	ModeRepo = "repo"
	ModeChat = "chat"
)

// BatchRunner executes one attempt's commands
type BatchRunner interface {
	RunBatch(ctx context.Context, commands []string) (evaluator.Batch, error)
}

// Recorder persists run progress. history.Store implements it.
type Recorder interface {
	StartRun(r *history.Run) error
	RecordReply(runID string, attempt int, content string) error
	RecordBatch(runID string, batch evaluator.Batch) error
	FinishRun(runID, status, lastError string) error
}

// Request describes one run
type Request struct {
	Mode   string
	Target string // repository URL or working directory
	Prompt string
	// Readme loads the README; nil skips FETCHING_README
	Readme func(ctx context.Context) (string, error)
}

// Outcome summarises a finished run
type Outcome struct {
	RunID     string
	State     State
	Attempts  []evaluator.Batch
	LastReply string
}

// Hooks observe progress; every field is optional
type Hooks struct {
	OnState    func(from, to State)
	OnReply    func(attempt int, content string)
	OnCommands func(attempt int, commands []string)
}

// Options tune the retry loop
type Options struct {
	MaxAttempts int
	RetryPause  time.Duration
	ReadmeLimit int
	Model       string
	Logger      *slog.Logger
	Recorder    Recorder
	Hooks       Hooks
}

// Controller runs the retry state machine. One Run at a time.
type Controller struct {
	completer llm.Completer
	extractor scanner.TextToCommands
	executor  BatchRunner
	opts      Options
	logger    *slog.Logger
	state     State
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a controller
func New(completer llm.Completer, extractor scanner.TextToCommands, executor BatchRunner, opts Options) *Controller {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultMaxAttempts
	}
	if opts.ReadmeLimit == 0 {
		opts.ReadmeLimit = config.DefaultReadmeLimit
	}
	return &Controller{
		completer: completer,
		extractor: extractor,
		executor:  executor,
		opts:      opts,
		logger:    logging.OrDiscard(opts.Logger),
		sleep:     sleepContext,
	}
}

// State returns the current state
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) transitionTo(next State) {
	prev := c.state
	c.state = next
	c.logger.Debug("state transition", "from", prev, "to", next)
	if c.opts.Hooks.OnState != nil {
		c.opts.Hooks.OnState(prev, next)
	}
}

// Run drives one request to SUCCESS or FAILURE.
// Remote errors are returned verbatim; exhausted attempts wrap ErrCommandFailed;
// a reply with no commands wraps ErrExtractionEmpty and leaves the text in LastReply.
func (c *Controller) Run(ctx context.Context, req Request) (Outcome, error) {
	c.state = StateIdle
	out := Outcome{}

	run := &history.Run{RunID: history.NewRunID(), Mode: req.Mode, Target: req.Target, Request: req.Prompt, Model: c.opts.Model}
	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.StartRun(run); err != nil {
			c.logger.Warn("history unavailable", "err", err)
		}
	}
	out.RunID = run.RunID

	outcome, err := c.run(ctx, req, run.RunID, &out)
	c.finish(run.RunID, outcome, err)
	return out, err
}

func (c *Controller) run(ctx context.Context, req Request, runID string, out *Outcome) (string, error) {
	readme := ""
	if req.Readme != nil {
		c.transitionTo(StateFetchingReadme)
		text, err := req.Readme(ctx)
		if err != nil {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return history.StatusFailure, fmt.Errorf("README not found: %w", err)
		}
		readme = repository.Truncate(text, c.opts.ReadmeLimit)
	}

	messages := InitialMessages(req, readme)
	var attempted []string

	for attempt := 1; ; attempt++ {
		c.transitionTo(StateAnalyzing)
		resp, err := c.completer.Complete(ctx, messages)
		if err != nil {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return abortStatus(ctx, err), err
		}
		out.LastReply = resp.Content
		c.record(func(r Recorder) error { return r.RecordReply(runID, attempt, resp.Content) })
		if c.opts.Hooks.OnReply != nil {
			c.opts.Hooks.OnReply(attempt, resp.Content)
		}

		commands := c.extractor.Commands(resp.Content)
		if len(commands) == 0 {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return history.StatusFailure, fmt.Errorf("%w: no executable command in reply (attempt %d)", apperrors.ErrExtractionEmpty, attempt)
		}
		if c.opts.Hooks.OnCommands != nil {
			c.opts.Hooks.OnCommands(attempt, commands)
		}

		c.transitionTo(StateExecuting)
		batch, err := c.executor.RunBatch(ctx, commands)
		batch.Attempt = attempt
		out.Attempts = append(out.Attempts, batch)
		c.record(func(r Recorder) error { return r.RecordBatch(runID, batch) })
		if err != nil {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return abortStatus(ctx, err), err
		}
		attempted = append(attempted, commands...)

		if !batch.Failed() {
			c.transitionTo(StateSuccess)
			out.State = StateSuccess
			return history.StatusSuccess, nil
		}

		failures := batch.Failures()
		c.logger.Info("attempt failed", "attempt", attempt, "failed", len(failures), "of", len(batch.Results))
		if attempt >= c.opts.MaxAttempts {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return history.StatusFailure, fmt.Errorf("%w after %d attempt(s): %w", apperrors.ErrCommandFailed, attempt, batch.Err())
		}

		c.transitionTo(StateDiagnosing)
		messages = DiagnosisMessages(req, readme, attempted, failures)
		if err := c.sleep(ctx, c.opts.RetryPause); err != nil {
			c.transitionTo(StateFailure)
			out.State = StateFailure
			return history.StatusCancelled, err
		}
	}
}

func (c *Controller) record(fn func(Recorder) error) {
	if c.opts.Recorder == nil {
		return
	}
	if err := fn(c.opts.Recorder); err != nil {
		c.logger.Warn("failed to record history", "err", err)
	}
}

func (c *Controller) finish(runID, status string, err error) {
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	}
	c.record(func(r Recorder) error { return r.FinishRun(runID, status, lastErr) })
}

func abortStatus(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return history.StatusCancelled
	}
	return history.StatusAborted
}

// sleepContext waits d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
