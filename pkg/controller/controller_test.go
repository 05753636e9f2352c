package controller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
	"github.com/computerscienceiscool/llm-autorun/pkg/evaluator"
	"github.com/computerscienceiscool/llm-autorun/pkg/history"
	"github.com/computerscienceiscool/llm-autorun/pkg/llm"
	"github.com/computerscienceiscool/llm-autorun/pkg/scanner"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	args := m.Called(ctx, messages)
	return args.Get(0).(llm.Response), args.Error(1)
}

type MockBatchRunner struct {
	mock.Mock
}

func (m *MockBatchRunner) RunBatch(ctx context.Context, commands []string) (evaluator.Batch, error) {
	args := m.Called(ctx, commands)
	return args.Get(0).(evaluator.Batch), args.Error(1)
}

// lineExtractor treats every non-empty line as a command
type lineExtractor struct{}

func (lineExtractor) Commands(text string) []string {
	out := []string{}
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func ok(cmd string) evaluator.ExecutionResult {
	return evaluator.ExecutionResult{Command: cmd, Status: evaluator.StatusOK}
}

func failed(cmd string, code int, stderr string) evaluator.ExecutionResult {
	return evaluator.ExecutionResult{Command: cmd, Status: evaluator.StatusFailed, ExitCode: code, Stderr: stderr}
}

func reply(s string) llm.Response {
	return llm.Response{Content: s}
}

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestController(c llm.Completer, r BatchRunner, opts Options) *Controller {
	ctrl := New(c, lineExtractor{}, r, opts)
	ctrl.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return ctrl
}

func repoRequest() Request {
	return Request{
		Mode:   ModeRepo,
		Target: "https://github.com/example/demo.git",
		Prompt: "run the tests",
		Readme: func(ctx context.Context) (string, error) { return "# Demo\nRun make test.", nil },
	}
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)
	store := openStore(t)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("mkdir Demo\ncd Demo"), nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"mkdir Demo", "cd Demo"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("mkdir Demo"), ok("cd Demo")}}, nil).Once()

	ctrl := newTestController(completer, runner, Options{MaxAttempts: 3, Recorder: store, Model: "test-model"})
	out, err := ctrl.Run(context.Background(), repoRequest())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, StateSuccess, ctrl.State())
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, 1, out.Attempts[0].Attempt)
	assert.NotEmpty(t, out.RunID)

	run, err := store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusSuccess, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, "test-model", run.Model)

	replies, err := store.Replies(out.RunID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "mkdir Demo\ncd Demo", replies[0].Content)

	completer.AssertExpectations(t)
	runner.AssertExpectations(t)
}

func TestRun_InitialMessagesCarryContext(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		if len(msgs) != 2 || msgs[0].Role != "system" {
			return false
		}
		user := msgs[1].Content
		return strings.Contains(user, "Repository: https://github.com/example/demo.git") &&
			strings.Contains(user, "README Content:\n# Demo") &&
			strings.Contains(user, "User Request: run the tests")
	})).Return(reply("make test"), nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"make test"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("make test")}}, nil)

	_, err := newTestController(completer, runner, Options{}).Run(context.Background(), repoRequest())
	require.NoError(t, err)
	completer.AssertExpectations(t)
}

func TestRun_FailureThenFix(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)
	store := openStore(t)

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return !strings.Contains(msgs[1].Content, "These commands failed")
	})).Return(reply("npm install\nnpm tset\nnpm start"), nil).Once()

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		user := msgs[1].Content
		return strings.Contains(user, "These commands failed:\n- npm tset") &&
			strings.Contains(user, "Unknown command: \"tset\"") &&
			strings.Contains(user, "1. npm install\n2. npm tset\n3. npm start")
	})).Return(reply("npm test"), nil).Once()

	runner.On("RunBatch", mock.Anything, []string{"npm install", "npm tset", "npm start"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{
			ok("npm install"),
			failed("npm tset", 1, "Unknown command: \"tset\""),
			ok("npm start"),
		}}, nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"npm test"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("npm test")}}, nil).Once()

	var states []State
	ctrl := newTestController(completer, runner, Options{
		MaxAttempts: 3,
		Recorder:    store,
		Hooks: Hooks{OnState: func(from, to State) {
			states = append(states, to)
		}},
	})
	out, err := ctrl.Run(context.Background(), repoRequest())
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, out.State)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, 2, out.Attempts[1].Attempt)
	assert.Equal(t, []State{
		StateFetchingReadme,
		StateAnalyzing, StateExecuting, StateDiagnosing,
		StateAnalyzing, StateExecuting, StateSuccess,
	}, states)

	results, err := store.Results(out.RunID)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	completer.AssertExpectations(t)
	runner.AssertExpectations(t)
}

func TestRun_AttemptsExhausted(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)
	store := openStore(t)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("false"), nil).Times(2)
	runner.On("RunBatch", mock.Anything, []string{"false"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{failed("false", 1, "")}}, nil).Times(2)

	out, err := newTestController(completer, runner, Options{MaxAttempts: 2, Recorder: store}).
		Run(context.Background(), repoRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCommandFailed))
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
	assert.Equal(t, StateFailure, out.State)
	assert.Len(t, out.Attempts, 2)

	run, err := store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusFailure, run.Status)
	assert.Equal(t, 2, run.Attempts)
	assert.Contains(t, run.LastError, "COMMAND_FAILED")

	completer.AssertExpectations(t)
	runner.AssertExpectations(t)
}

func TestRun_EmptyExtraction(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("   \n\n"), nil).Once()

	out, err := newTestController(completer, runner, Options{}).Run(context.Background(), repoRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExtractionEmpty))
	assert.Equal(t, StateFailure, out.State)
	assert.Equal(t, "   \n\n", out.LastReply)
	assert.Empty(t, out.Attempts)
	runner.AssertNotCalled(t, "RunBatch", mock.Anything, mock.Anything)
}

func TestRun_DiagnosisWithoutCommands(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("false"), nil).Once()
	completer.On("Complete", mock.Anything, mock.Anything).Return(reply(""), nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"false"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{failed("false", 1, "")}}, nil).Once()

	out, err := newTestController(completer, runner, Options{MaxAttempts: 3}).Run(context.Background(), repoRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExtractionEmpty))
	assert.Contains(t, err.Error(), "attempt 2")
	assert.Len(t, out.Attempts, 1)
	completer.AssertExpectations(t)
}

func TestRun_APIErrorAborts(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)
	store := openStore(t)

	apiErr := &apperrors.APIError{StatusCode: 401, Message: "Invalid API key"}
	completer.On("Complete", mock.Anything, mock.Anything).Return(llm.Response{}, apiErr).Once()

	out, err := newTestController(completer, runner, Options{Recorder: store}).Run(context.Background(), repoRequest())
	require.Error(t, err)
	assert.Same(t, apiErr, err)
	assert.Equal(t, StateFailure, out.State)

	run, err := store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusAborted, run.Status)
	assert.Equal(t, "API Error (HTTP 401): Invalid API key", run.LastError)
	runner.AssertNotCalled(t, "RunBatch", mock.Anything, mock.Anything)
}

func TestRun_ReadmeFailure(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	req := repoRequest()
	req.Readme = func(ctx context.Context) (string, error) { return "", errors.New("404") }

	var states []State
	ctrl := newTestController(completer, runner, Options{Hooks: Hooks{OnState: func(_, to State) { states = append(states, to) }}})
	out, err := ctrl.Run(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "README not found")
	assert.Equal(t, StateFailure, out.State)
	assert.Equal(t, []State{StateFetchingReadme, StateFailure}, states)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestRun_ReadmeTruncated(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	req := repoRequest()
	req.Readme = func(ctx context.Context) (string, error) { return strings.Repeat("a", 50) + "TAIL", nil }

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		user := msgs[1].Content
		return strings.Contains(user, strings.Repeat("a", 10)) && !strings.Contains(user, "TAIL")
	})).Return(reply("ls"), nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"ls"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("ls")}}, nil)

	_, err := newTestController(completer, runner, Options{ReadmeLimit: 20}).Run(context.Background(), req)
	require.NoError(t, err)
	completer.AssertExpectations(t)
}

func TestRun_ChatModeSkipsReadme(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return msgs[0].Content == chatSystemPrompt && msgs[1].Content == "list files"
	})).Return(reply("Get-ChildItem"), nil).Once()
	runner.On("RunBatch", mock.Anything, []string{"Get-ChildItem"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("Get-ChildItem")}}, nil)

	var states []State
	ctrl := newTestController(completer, runner, Options{MaxAttempts: 1, Hooks: Hooks{OnState: func(_, to State) { states = append(states, to) }}})
	out, err := ctrl.Run(context.Background(), Request{Mode: ModeChat, Target: "/tmp", Prompt: "list files"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, []State{StateAnalyzing, StateExecuting, StateSuccess}, states)
}

func TestRun_CancelDuringPause(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)
	store := openStore(t)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("false"), nil).Once()
	runner.On("RunBatch", mock.Anything, mock.Anything).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{failed("false", 1, "")}}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := New(completer, lineExtractor{}, runner, Options{MaxAttempts: 3, RetryPause: time.Hour, Recorder: store})
	ctrl.opts.Hooks.OnState = func(_, to State) {
		if to == StateDiagnosing {
			cancel()
		}
	}

	out, err := ctrl.Run(ctx, repoRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailure, out.State)

	run, err := store.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusCancelled, run.Status)
	completer.AssertExpectations(t)
}

func TestRun_BatchCancelled(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	ctx, cancel := context.WithCancel(context.Background())
	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("sleep 10"), nil).Once()
	runner.On("RunBatch", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(evaluator.Batch{}, context.Canceled).Once()

	out, err := newTestController(completer, runner, Options{}).Run(ctx, repoRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailure, out.State)
}

func TestRun_NilRecorderAndHooks(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	completer.On("Complete", mock.Anything, mock.Anything).Return(reply("echo hi"), nil)
	runner.On("RunBatch", mock.Anything, mock.Anything).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("echo hi")}}, nil)

	var gotReply string
	var gotCommands []string
	ctrl := newTestController(completer, runner, Options{Hooks: Hooks{
		OnReply:    func(_ int, content string) { gotReply = content },
		OnCommands: func(_ int, cmds []string) { gotCommands = cmds },
	}})
	out, err := ctrl.Run(context.Background(), Request{Mode: ModeChat, Prompt: "greet"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "echo hi", gotReply)
	assert.Equal(t, []string{"echo hi"}, gotCommands)
}

func TestRun_RealExtractor(t *testing.T) {
	completer := new(MockCompleter)
	runner := new(MockBatchRunner)

	text := "Here you go:\n```powershell\nmkdir Demo\ncd Demo\n```\n"
	completer.On("Complete", mock.Anything, mock.Anything).Return(reply(text), nil)
	runner.On("RunBatch", mock.Anything, []string{"mkdir Demo", "cd Demo"}).
		Return(evaluator.Batch{Results: []evaluator.ExecutionResult{ok("mkdir Demo"), ok("cd Demo")}}, nil).Once()

	ctrl := New(completer, scanner.NewExtractor(scanner.ExtractorOptions{}), runner, Options{})
	_, err := ctrl.Run(context.Background(), Request{Mode: ModeChat, Prompt: "make a Demo folder"})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
