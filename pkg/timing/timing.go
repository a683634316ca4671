package timing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Result contains the results of a timed command execution
type Result struct {
	Command    string
	Args       []string
	DurationMs int64
	Stdout     string
	Stderr     string
	Output     string // Interleaved stdout+stderr when Options.MergeOutput is set
	ExitCode   int
	Error      error
}

// Options configures command execution
type Options struct {
	Dir         string        // Working directory
	Env         []string      // Full environment (nil inherits the parent's)
	Timeout     time.Duration // Command timeout (0 for no timeout)
	MergeOutput bool          // Capture stdout and stderr into a single Output stream
}

// ProcessRunner runs one external command to completion.
// The orchestrator and the git wrappers only talk to processes through it,
// so tests can substitute a fake that scripts exit codes and output.
type ProcessRunner interface {
	Run(ctx context.Context, command string, args []string, opts *Options) *Result
}

// ExecRunner is the ProcessRunner backed by os/exec.
type ExecRunner struct{}

// Run implements ProcessRunner.
func (ExecRunner) Run(ctx context.Context, command string, args []string, opts *Options) *Result {
	return RunContext(ctx, command, args, opts)
}

// RunContext executes a command and measures its execution time with
// millisecond precision. Cancelling ctx kills the process.
func RunContext(ctx context.Context, command string, args []string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}

	result := &Result{
		Command: command,
		Args:    args,
	}

	if command == "" {
		result.Error = errors.New("empty command")
		result.ExitCode = -1
		return result
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	var stdout, stderr, merged bytes.Buffer
	if opts.MergeOutput {
		cmd.Stdout = &merged
		cmd.Stderr = &merged
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result.DurationMs = duration.Milliseconds()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Output = merged.String()
	if !opts.MergeOutput {
		result.Output = result.Stdout + result.Stderr
	}

	if err != nil {
		result.Error = err
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	return result
}

// Success returns true if the command executed successfully
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// CommandLine returns the command and its arguments joined by spaces
func (r *Result) CommandLine() string {
	if len(r.Args) == 0 {
		return r.Command
	}
	return r.Command + " " + strings.Join(r.Args, " ")
}

// String returns a human-readable summary of the result
func (r *Result) String() string {
	status := "success"
	if !r.Success() {
		status = fmt.Sprintf("failed (exit code %d)", r.ExitCode)
	}

	return fmt.Sprintf("%s %v: %s (%.3fs)",
		r.Command,
		r.Args,
		status,
		float64(r.DurationMs)/1000.0,
	)
}

// DebugString returns a detailed debug output
func (r *Result) DebugString() string {
	output := r.String() + "\n"

	if r.Stdout != "" {
		output += fmt.Sprintf("STDOUT:\n%s\n", r.Stdout)
	}

	if r.Stderr != "" {
		output += fmt.Sprintf("STDERR:\n%s\n", r.Stderr)
	}

	if r.Stdout == "" && r.Stderr == "" && r.Output != "" {
		output += fmt.Sprintf("OUTPUT:\n%s\n", r.Output)
	}

	if r.Error != nil {
		output += fmt.Sprintf("ERROR: %v\n", r.Error)
	}

	return output
}

// Environ returns the current process environment with the given
// KEY=VALUE overrides replacing any inherited value.
func Environ(overrides map[string]string) []string {
	env := os.Environ()
	out := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
