// Package orchestrator benchmarks a sequence of commits of one working copy.
//
// Commits run strictly one after another: the working copy is a single
// directory checked out in place for each commit. A commit that fails to
// measure or upload is recorded and the run moves on to the next one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"

	"github.com/mslinn/commitbench/pkg/commits"
	"github.com/mslinn/commitbench/pkg/executor"
	"github.com/mslinn/commitbench/pkg/git"
	"github.com/mslinn/commitbench/pkg/upload"
)

// ErrAsIsWithRange rejects as-is mode combined with a commit range
var ErrAsIsWithRange = errors.New("--as-is can not be used with --start-commit and/or --end-commit")

// State of a commit or of the whole run
type State string

const (
	Pending   State = "PENDING"
	Running   State = "RUNNING"
	Succeeded State = "SUCCEEDED"
	Failed    State = "FAILED"
	Partial   State = "PARTIAL" // run only: at least one commit failed
)

// DefaultMainline is the branch checked out before enumerating commits
const DefaultMainline = "main"

// Options selects what a run measures
type Options struct {
	WorkTree    string
	StartCommit string
	EndCommit   string
	CloneURL    string // cloned into WorkTree when WorkTree does not exist
	Mainline    string

	Modes   []executor.Mode
	Pattern string // benchmark name glob handed to the measurement process
	Tags    map[string]string

	AsIs              bool
	Randomize         bool
	DeleteOutputFiles bool
	DeleteRepo        bool
}

// CommitResult is the outcome of one commit
type CommitResult struct {
	Commit commits.Commit
	State  State
	Files  []string
	Err    error
}

// Report summarizes a run
type Report struct {
	State   State
	Commits []CommitResult // chronological, whatever the execution order was
	Failed  []string       // failed shas, chronological
}

// Runner executes a run
type Runner struct {
	Options  Options
	Git      *git.Context
	Executor *executor.Executor
	Uploader *upload.Uploader // nil disables upload
	Logger   *slog.Logger
	Out      io.Writer

	// Shuffle permutes the execution order when Options.Randomize is set.
	// Defaults to math/rand Shuffle.
	Shuffle func(n int, swap func(i, j int))
}

// NewRunner creates a Runner whose executor shares g
func NewRunner(opts Options, g *git.Context, exec *executor.Executor, uploader *upload.Uploader, logger *slog.Logger) *Runner {
	return &Runner{
		Options:  opts,
		Git:      g,
		Executor: exec,
		Uploader: uploader,
		Logger:   logger,
		Out:      os.Stdout,
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

// Execute runs the whole loop. Only fatal problems are returned as errors:
// an invalid option combination, a failure to prepare the working copy, or
// a failure to enumerate commits. Per-commit failures end up in the report.
//
// When ctx is cancelled the loop stops after the current commit, cleanup is
// skipped so result files stay on disk, and the partial report is returned
// together with the context error.
func (r *Runner) Execute(ctx context.Context) (*Report, error) {
	opts := r.Options
	if opts.AsIs && (opts.StartCommit != "" || opts.EndCommit != "") {
		return nil, ErrAsIsWithRange
	}

	if err := r.prepareWorkTree(ctx); err != nil {
		return nil, err
	}

	list, err := commits.Enumerate(ctx, r.Git, opts.StartCommit, opts.EndCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate commits: %w", err)
	}
	r.logger().Info("commits to benchmark", "count", len(list), "worktree", opts.WorkTree)

	results := make([]CommitResult, len(list))
	for i, c := range list {
		results[i] = CommitResult{Commit: c, State: Pending}
	}

	order := make([]int, len(list))
	for i := range order {
		order[i] = i
	}
	if opts.Randomize {
		shuffle := r.Shuffle
		if shuffle == nil {
			shuffle = rand.Shuffle
		}
		shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	state := &executor.RunState{}
	var interrupted error
	for n, idx := range order {
		if interrupted = ctx.Err(); interrupted != nil {
			break
		}

		res := &results[idx]
		if len(list) > 1 {
			fmt.Fprintf(r.out(), "Running bench for commit %s (%d of %d)\n", res.Commit.ShortSHA(), n+1, len(list))
		}

		res.State = Running
		res.Files, res.Err = r.runCommit(ctx, res.Commit, state)
		if res.Err != nil {
			res.State = Failed
			if interrupted = ctx.Err(); interrupted != nil {
				break
			}
			r.logFailure(res.Commit, res.Err)
			continue
		}
		res.State = Succeeded
	}

	report := &Report{State: Succeeded, Commits: results}
	for _, res := range results {
		if res.State == Failed {
			report.Failed = append(report.Failed, res.Commit.SHA)
		}
	}
	if len(report.Failed) > 0 {
		report.State = Partial
	}

	if interrupted != nil {
		r.logger().Warn("run interrupted, keeping result files", "files", len(state.Files))
		r.printSummary(report)
		return report, fmt.Errorf("run interrupted: %w", interrupted)
	}

	if err := r.cleanup(state); err != nil {
		r.logger().Warn("cleanup failed", "error", err)
	}
	r.printSummary(report)
	return report, nil
}

// prepareWorkTree clones the working copy if needed and, unless running as
// is, resets it to the freshly fetched mainline.
func (r *Runner) prepareWorkTree(ctx context.Context) error {
	opts := r.Options
	if opts.CloneURL != "" {
		if _, err := os.Stat(opts.WorkTree); errors.Is(err, os.ErrNotExist) {
			if err := r.Git.Clone(ctx, opts.CloneURL, opts.WorkTree); err != nil {
				return fmt.Errorf("failed to clone %s: %w", opts.CloneURL, err)
			}
		}
	}
	if opts.AsIs {
		return nil
	}

	mainline := opts.Mainline
	if mainline == "" {
		mainline = DefaultMainline
	}
	if err := r.Git.Fetch(ctx); err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	if err := r.Git.Checkout(ctx, mainline); err != nil {
		return fmt.Errorf("failed to check out %s: %w", mainline, err)
	}
	return nil
}

// runCommit measures and uploads one commit. A panic is a failure of this
// commit only.
func (r *Runner) runCommit(ctx context.Context, c commits.Commit, state *executor.RunState) (files []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while benchmarking %s: %v", c.ShortSHA(), p)
		}
	}()

	files, err = r.Executor.Execute(ctx, c, state, r.Options.Modes, r.Options.Pattern, r.Options.AsIs)
	if err != nil {
		return files, err
	}

	if r.Uploader != nil {
		fmt.Fprintf(r.out(), "Uploading bench for commit %s\n", c.ShortSHA())
		if err := r.Uploader.Upload(ctx, files, c, r.Options.Tags); err != nil {
			return files, fmt.Errorf("upload failed: %w", err)
		}
	}
	return files, nil
}

func (r *Runner) logFailure(c commits.Commit, err error) {
	var perr *executor.ProcessError
	if errors.As(err, &perr) {
		r.logger().Error("commit failed",
			"sha", c.SHA,
			"command", perr.Command,
			"exit_code", perr.ExitCode,
			"output", perr.Output)
		return
	}
	var gitErr *git.CommandError
	if errors.As(err, &gitErr) && gitErr.Result != nil {
		r.logger().Error("commit failed",
			"sha", c.SHA,
			"op", gitErr.Op,
			"detail", gitErr.Result.DebugString())
		return
	}
	r.logger().Error("commit failed", "sha", c.SHA, "error", err)
}

// cleanup removes the working copy and the produced result files when asked
func (r *Runner) cleanup(state *executor.RunState) error {
	var errs []error

	if r.Options.DeleteRepo {
		if err := os.RemoveAll(r.Options.WorkTree); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", r.Options.WorkTree, err))
		} else {
			r.logger().Debug("removed working copy", "path", r.Options.WorkTree)
		}
	}

	if r.Options.DeleteOutputFiles {
		for _, f := range state.Files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", f, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) printSummary(report *Report) {
	if len(report.Failed) == 0 {
		fmt.Fprintf(r.out(), "Failed commits: none (%d succeeded)\n", len(report.Commits))
		return
	}
	fmt.Fprintln(r.out(), "Failed commits:")
	for _, sha := range report.Failed {
		fmt.Fprintln(r.out(), sha)
	}
}
