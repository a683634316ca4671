// Package executor runs the measurement process for one commit, once per
// benchmark mode, and collects the result files it writes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mslinn/commitbench/pkg/commits"
	"github.com/mslinn/commitbench/pkg/git"
	"github.com/mslinn/commitbench/pkg/timing"
)

// Mode is one kind of measurement. Flag is appended to the measurement
// command; the plain timing mode has none.
type Mode struct {
	Name string
	Flag string
}

// Known modes
var (
	Timing      = Mode{Name: "time"}
	Tracemalloc = Mode{Name: "tracemalloc", Flag: "--tracemalloc"}
	TrackMemory = Mode{Name: "trackmem", Flag: "--track-memory"}
)

// Modes lists the known modes in execution order
var Modes = []Mode{Timing, Tracemalloc, TrackMemory}

// ModeByName looks up a known mode
func ModeByName(name string) (Mode, bool) {
	for _, m := range Modes {
		if m.Name == name {
			return m, true
		}
	}
	return Mode{}, false
}

// Environment variables handed to the measurement process
const (
	EnvCommitTimestamp = "COMMIT_TIMESTAMP"
	EnvCommitSHA       = "COMMIT_SHA"
	EnvCommitMessage   = "COMMIT_MESSAGE"
	EnvBenchPattern    = "BENCH_PATTERN"
)

// DefaultModulePathVar is the search path variable the working copy is
// prepended to.
const DefaultModulePathVar = "PYTHONPATH"

// ProcessError is a measurement process that exited non-zero
type ProcessError struct {
	Command  string
	ExitCode int
	Output   string // merged stdout and stderr
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil && e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// RunState is the state of one orchestrator run that outlives a single
// commit. It is owned by a single goroutine.
type RunState struct {
	OverwriteAll bool     // operator chose "all" at an overwrite prompt
	Files        []string // result files produced so far
}

// Executor runs the measurement command for commits of one working copy
type Executor struct {
	Runner        timing.ProcessRunner
	Git           *git.Context
	Command       []string // measurement command and its leading arguments
	ModulePathVar string
	OutputDir     string
	Timeout       time.Duration // per measurement process; 0 waits forever
	Confirmer     Confirmer
	Logger        *slog.Logger
	Out           io.Writer // progress lines and measurement output
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Executor) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// OutputFile returns the result file path for mode at sha
func (e *Executor) OutputFile(mode Mode, sha string) string {
	return filepath.Join(e.OutputDir, fmt.Sprintf("result.%s.%s.json", mode.Name, sha))
}

// ParseOutputFile recovers the mode and sha from a path built by
// OutputFile. ok is false for any other file name or an unknown mode.
func ParseOutputFile(path string) (mode Mode, sha string, ok bool) {
	name, found := strings.CutPrefix(filepath.Base(path), "result.")
	if !found {
		return Mode{}, "", false
	}
	name, found = strings.CutSuffix(name, ".json")
	if !found {
		return Mode{}, "", false
	}
	modeName, sha, found := strings.Cut(name, ".")
	if !found || sha == "" {
		return Mode{}, "", false
	}
	mode, ok = ModeByName(modeName)
	return mode, sha, ok
}

// Execute checks out commit (unless asIs or the commit is the current
// state) and runs one measurement process per mode. It returns the result
// files written for this commit. The first failing process aborts the
// commit with a *ProcessError; files written before it are still recorded
// in state.
func (e *Executor) Execute(ctx context.Context, commit commits.Commit, state *RunState, modes []Mode, pattern string, asIs bool) ([]string, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("no measurement command configured")
	}

	if !asIs && !commit.Current {
		if err := e.Git.Checkout(ctx, commit.SHA); err != nil {
			return nil, fmt.Errorf("failed to check out %s: %w", commit.ShortSHA(), err)
		}
	}

	env := e.environ(commit, pattern)
	var files []string
	for _, mode := range modes {
		file := e.OutputFile(mode, commit.SHA)

		proceed, err := e.clearExisting(file, state)
		if err != nil {
			return files, err
		}
		if !proceed {
			fmt.Fprintf(e.out(), "Skipped %s bench for %s\n", mode.Name, commit.ShortSHA())
			continue
		}

		if err := e.measure(ctx, mode, file, env); err != nil {
			return files, err
		}
		files = append(files, file)
		state.Files = append(state.Files, file)
	}
	return files, nil
}

// clearExisting removes file if it exists and the overwrite policy allows
// it. It reports false when the operator declined.
func (e *Executor) clearExisting(file string, state *RunState) (bool, error) {
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return true, nil
	}

	if !state.OverwriteAll {
		confirmer := e.Confirmer
		if confirmer == nil {
			confirmer = AlwaysOverwrite{}
		}
		decision, err := confirmer.ConfirmOverwrite(file)
		if err != nil {
			return false, err
		}
		switch decision {
		case No:
			return false, nil
		case All:
			state.OverwriteAll = true
		}
	}

	if err := os.Remove(file); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", file, err)
	}
	return true, nil
}

func (e *Executor) environ(commit commits.Commit, pattern string) []string {
	pathVar := e.ModulePathVar
	if pathVar == "" {
		pathVar = DefaultModulePathVar
	}
	modulePath := e.Git.WorkDir
	if inherited := os.Getenv(pathVar); inherited != "" {
		modulePath += string(os.PathListSeparator) + inherited
	}

	overrides := map[string]string{
		pathVar:            modulePath,
		EnvCommitTimestamp: commit.Timestamp.Format(time.RFC3339),
		EnvCommitSHA:       commit.SHA,
		EnvCommitMessage:   commit.Title,
	}
	if pattern != "" {
		overrides[EnvBenchPattern] = pattern
	}
	return timing.Environ(overrides)
}

func (e *Executor) measure(ctx context.Context, mode Mode, file string, env []string) error {
	pathVar := e.ModulePathVar
	if pathVar == "" {
		pathVar = DefaultModulePathVar
	}

	args := append([]string{}, e.Command[1:]...)
	args = append(args,
		"-o", file,
		"--inherit-environ", strings.Join([]string{EnvCommitTimestamp, EnvCommitSHA, EnvCommitMessage, pathVar, EnvBenchPattern}, ","),
	)
	if mode.Flag != "" {
		args = append(args, mode.Flag)
	}

	runner := e.Runner
	if runner == nil {
		runner = timing.ExecRunner{}
	}
	result := runner.Run(ctx, e.Command[0], args, &timing.Options{
		Env:         env,
		Timeout:     e.Timeout,
		MergeOutput: true,
	})
	e.logger().Debug("measurement finished", "mode", mode.Name, "duration_ms", result.DurationMs, "exit_code", result.ExitCode)

	if !result.Success() {
		return &ProcessError{
			Command:  result.CommandLine(),
			ExitCode: result.ExitCode,
			Output:   result.Output,
			Err:      result.Error,
		}
	}
	fmt.Fprint(e.out(), result.Output)
	return nil
}
