package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mslinn/commitbench/pkg/commits"
	"github.com/mslinn/commitbench/pkg/git"
	"github.com/mslinn/commitbench/pkg/timing"
)

type call struct {
	command string
	args    []string
	env     []string
	timeout time.Duration
}

// fakeRunner records every call. Measurement calls write the file named
// after -o unless fail returns a non-zero exit code for the mode flag.
type fakeRunner struct {
	calls []call
	fail  func(args []string) int
}

func (f *fakeRunner) Run(_ context.Context, command string, args []string, opts *timing.Options) *timing.Result {
	f.calls = append(f.calls, call{command: command, args: args, env: opts.Env, timeout: opts.Timeout})
	r := &timing.Result{Command: command, Args: args}
	if command == "git" {
		return r
	}
	if f.fail != nil {
		if code := f.fail(args); code != 0 {
			r.ExitCode = code
			r.Output = "Traceback: boom\n"
			r.Error = errors.New("exit status")
			return r
		}
	}
	for i, a := range args {
		if a == "-o" {
			os.WriteFile(args[i+1], []byte("{}"), 0644)
		}
	}
	r.Output = "measured\n"
	return r
}

func (f *fakeRunner) gitCalls() []string {
	var out []string
	for _, c := range f.calls {
		if c.command == "git" {
			out = append(out, strings.Join(c.args, " "))
		}
	}
	return out
}

type scriptedConfirmer struct {
	answers []Decision
	asked   []string
}

func (s *scriptedConfirmer) ConfirmOverwrite(path string) (Decision, error) {
	s.asked = append(s.asked, path)
	d := s.answers[0]
	s.answers = s.answers[1:]
	return d, nil
}

func newExecutor(t *testing.T, runner *fakeRunner) (*Executor, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &Executor{
		Runner:    runner,
		Git:       &git.Context{Runner: runner, WorkDir: "/work/repo"},
		Command:   []string{"python", "run_bench.py"},
		OutputDir: t.TempDir(),
		Out:       &out,
	}, &out
}

var testCommit = commits.Commit{
	SHA:       "abc1234567890",
	Timestamp: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	Title:     "Speed up spans",
	Message:   "body",
	Author:    "dev@example.com",
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func TestExecute_PassesTimeout(t *testing.T) {
	runner := &fakeRunner{}
	e, _ := newExecutor(t, runner)
	e.Timeout = 30 * time.Minute

	_, err := e.Execute(context.Background(), testCommit, &RunState{}, []Mode{Timing}, "", false)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Equal(t, time.Duration(0), runner.calls[0].timeout, "git is never cut short")
	assert.Equal(t, 30*time.Minute, runner.calls[1].timeout)
}

func TestExecute_RunsEveryMode(t *testing.T) {
	runner := &fakeRunner{}
	e, out := newExecutor(t, runner)
	state := &RunState{}

	files, err := e.Execute(context.Background(), testCommit, state, []Mode{Timing, Tracemalloc}, "*spans*", false)
	require.NoError(t, err)

	assert.Equal(t, []string{
		e.OutputFile(Timing, testCommit.SHA),
		e.OutputFile(Tracemalloc, testCommit.SHA),
	}, files)
	assert.Equal(t, files, state.Files)
	assert.Equal(t, []string{"checkout abc1234567890"}, runner.gitCalls())
	assert.Equal(t, "measured\nmeasured\n", out.String())

	require.Len(t, runner.calls, 3)
	timingCall := runner.calls[1]
	assert.Equal(t, "python", timingCall.command)
	assert.Equal(t, []string{
		"run_bench.py", "-o", files[0],
		"--inherit-environ", "COMMIT_TIMESTAMP,COMMIT_SHA,COMMIT_MESSAGE,PYTHONPATH,BENCH_PATTERN",
	}, timingCall.args)
	assert.Equal(t, "--tracemalloc", runner.calls[2].args[len(runner.calls[2].args)-1])

	for key, want := range map[string]string{
		"COMMIT_SHA":       "abc1234567890",
		"COMMIT_TIMESTAMP": "2024-05-06T07:08:09Z",
		"COMMIT_MESSAGE":   "Speed up spans",
		"BENCH_PATTERN":    "*spans*",
	} {
		got, ok := envValue(timingCall.env, key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	pythonPath, _ := envValue(timingCall.env, "PYTHONPATH")
	assert.True(t, strings.HasPrefix(pythonPath, "/work/repo"), pythonPath)
}

func TestExecute_AsIsAndCurrentSkipCheckout(t *testing.T) {
	tests := []struct {
		name   string
		commit commits.Commit
		asIs   bool
	}{
		{"as is", testCommit, true},
		{"current state", commits.Commit{SHA: "def456", Current: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			e, _ := newExecutor(t, runner)

			_, err := e.Execute(context.Background(), tt.commit, &RunState{}, []Mode{Timing}, "", tt.asIs)
			require.NoError(t, err)
			assert.Empty(t, runner.gitCalls())

			_, hasPattern := envValue(runner.calls[0].env, "BENCH_PATTERN")
			assert.False(t, hasPattern, "no pattern, no BENCH_PATTERN")
		})
	}
}

func TestExecute_ProcessFailure(t *testing.T) {
	runner := &fakeRunner{fail: func(args []string) int {
		if args[len(args)-1] == "--tracemalloc" {
			return 2
		}
		return 0
	}}
	e, _ := newExecutor(t, runner)
	state := &RunState{}

	files, err := e.Execute(context.Background(), testCommit, state, []Mode{Timing, Tracemalloc}, "", false)

	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.ExitCode)
	assert.Contains(t, perr.Output, "Traceback")
	assert.Contains(t, perr.Error(), "exited with status 2")
	assert.Equal(t, []string{e.OutputFile(Timing, testCommit.SHA)}, files)
	assert.Len(t, state.Files, 1)
}

func TestExecute_DeclinedOverwriteSkipsMode(t *testing.T) {
	runner := &fakeRunner{}
	e, out := newExecutor(t, runner)
	existing := e.OutputFile(Timing, "abc123")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	confirmer := &scriptedConfirmer{answers: []Decision{No}}
	e.Confirmer = confirmer
	commit := commits.Commit{SHA: "abc123"}

	files, err := e.Execute(context.Background(), commit, &RunState{}, []Mode{Timing, Tracemalloc}, "", true)
	require.NoError(t, err)

	assert.Equal(t, []string{existing}, confirmer.asked)
	assert.Equal(t, []string{e.OutputFile(Tracemalloc, "abc123")}, files)
	assert.Contains(t, out.String(), "Skipped time bench for abc123")

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "declined file is left untouched")
}

func TestExecute_OverwriteAllIsRemembered(t *testing.T) {
	runner := &fakeRunner{}
	e, _ := newExecutor(t, runner)
	confirmer := &scriptedConfirmer{answers: []Decision{All}}
	e.Confirmer = confirmer
	state := &RunState{}

	for _, sha := range []string{"aaa111", "bbb222"} {
		for _, m := range []Mode{Timing, Tracemalloc} {
			require.NoError(t, os.WriteFile(e.OutputFile(m, sha), []byte("old"), 0644))
		}
	}

	for _, sha := range []string{"aaa111", "bbb222"} {
		files, err := e.Execute(context.Background(), commits.Commit{SHA: sha}, state, []Mode{Timing, Tracemalloc}, "", true)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	}

	assert.True(t, state.OverwriteAll)
	assert.Len(t, confirmer.asked, 1, "only the first conflict prompts")
	assert.Len(t, state.Files, 4)
}

func TestExecute_DefaultConfirmerOverwrites(t *testing.T) {
	runner := &fakeRunner{}
	e, _ := newExecutor(t, runner)
	file := e.OutputFile(Timing, "abc123")
	require.NoError(t, os.WriteFile(file, []byte("old"), 0644))

	files, err := e.Execute(context.Background(), commits.Commit{SHA: "abc123"}, &RunState{}, []Mode{Timing}, "", true)
	require.NoError(t, err)
	assert.Equal(t, []string{file}, files)

	data, _ := os.ReadFile(file)
	assert.Equal(t, "{}", string(data))
}

func TestExecute_NoCommand(t *testing.T) {
	e, _ := newExecutor(t, &fakeRunner{})
	e.Command = nil
	_, err := e.Execute(context.Background(), testCommit, &RunState{}, []Mode{Timing}, "", true)
	assert.Error(t, err)
}

func TestModeByName(t *testing.T) {
	m, ok := ModeByName("tracemalloc")
	assert.True(t, ok)
	assert.Equal(t, "--tracemalloc", m.Flag)

	_, ok = ModeByName("cpu")
	assert.False(t, ok)
}

func TestOutputFile(t *testing.T) {
	e := &Executor{OutputDir: "out"}
	assert.Equal(t, filepath.Join("out", "result.trackmem.abc.json"), e.OutputFile(TrackMemory, "abc"))
}

func TestParseOutputFile(t *testing.T) {
	sha := "0123456789abcdef0123456789abcdef01234567"
	e := &Executor{OutputDir: "out"}

	mode, got, ok := ParseOutputFile(e.OutputFile(Tracemalloc, sha))
	require.True(t, ok)
	assert.Equal(t, Tracemalloc, mode)
	assert.Equal(t, sha, got)

	for _, bad := range []string{"result.json", "result.time.json", "result.unknown.abc.json", "bench.time.abc.json", "result.time.abc.txt"} {
		_, _, ok := ParseOutputFile(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
		ok   bool
	}{
		{"", Yes, true},
		{"Y\n", Yes, true},
		{"n", No, true},
		{"ALL", All, true},
		{"maybe", No, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDecision(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptConfirmer_LineInput(t *testing.T) {
	var out bytes.Buffer
	p := &PromptConfirmer{In: strings.NewReader("what\nall\nn\n"), Out: &out}

	d, err := p.ConfirmOverwrite("result.time.abc.json")
	require.NoError(t, err)
	assert.Equal(t, All, d)
	assert.Contains(t, out.String(), "Error: invalid input")

	d, err = p.ConfirmOverwrite("result.tracemalloc.abc.json")
	require.NoError(t, err)
	assert.Equal(t, No, d)

	d, err = p.ConfirmOverwrite("result.trackmem.abc.json")
	require.NoError(t, err)
	assert.Equal(t, Yes, d, "end of input takes the default")
}
