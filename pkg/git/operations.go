package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mslinn/commitbench/pkg/timing"
)

// Context holds the execution context for git operations on one working copy
type Context struct {
	Runner  timing.ProcessRunner
	Logger  *slog.Logger
	WorkDir string // Working copy every command runs in
}

// New returns a Context for workDir that runs real git processes.
func New(workDir string, logger *slog.Logger) *Context {
	return &Context{
		Runner:  timing.ExecRunner{},
		Logger:  logger,
		WorkDir: workDir,
	}
}

// CommandError is returned when git exits non-zero.
type CommandError struct {
	Op       string
	ExitCode int
	Output   string
	Err      error
	Result   *timing.Result
}

func (e *CommandError) Error() string {
	if e.Err != nil && e.ExitCode < 0 {
		return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("git %s failed (exit %d): %s", e.Op, e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

func (ctx *Context) logger() *slog.Logger {
	if ctx.Logger == nil {
		return slog.Default()
	}
	return ctx.Logger
}

func (ctx *Context) runner() timing.ProcessRunner {
	if ctx.Runner == nil {
		return timing.ExecRunner{}
	}
	return ctx.Runner
}

// run executes git with args in dir, logging the timed result.
func (ctx *Context) run(c context.Context, op, dir string, args ...string) (*timing.Result, error) {
	result := ctx.runner().Run(c, "git", args, &timing.Options{Dir: dir})

	ctx.logger().Debug("git operation",
		"op", op,
		"command", result.CommandLine(),
		"dir", dir,
		"duration_ms", result.DurationMs,
		"exit_code", result.ExitCode)

	if !result.Success() {
		return result, &CommandError{
			Op:       op,
			ExitCode: result.ExitCode,
			Output:   combinedOutput(result),
			Err:      result.Error,
			Result:   result,
		}
	}
	return result, nil
}

// Clone clones url into destDir. The parent directory is created if needed.
func (ctx *Context) Clone(c context.Context, url, destDir string) error {
	ctx.logger().Info("cloning repository", "url", url, "dest", destDir)

	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	_, err := ctx.run(c, "clone", "", "clone", url, destDir)
	return err
}

// Fetch fetches remote updates into the working copy
func (ctx *Context) Fetch(c context.Context) error {
	_, err := ctx.run(c, "fetch", ctx.WorkDir, "fetch")
	return err
}

// Checkout checks out ref (a branch name or sha) in place
func (ctx *Context) Checkout(c context.Context, ref string) error {
	_, err := ctx.run(c, "checkout", ctx.WorkDir, "checkout", ref)
	return err
}

// Log runs git log with args and returns its stdout
func (ctx *Context) Log(c context.Context, args ...string) (string, error) {
	result, err := ctx.run(c, "log", ctx.WorkDir, append([]string{"log"}, args...)...)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

func combinedOutput(r *timing.Result) string {
	if r.Output != "" {
		return r.Output
	}
	return r.Stdout + r.Stderr
}
