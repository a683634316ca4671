package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/mslinn/commitbench/pkg/config"
	"github.com/mslinn/commitbench/pkg/executor"
	"github.com/mslinn/commitbench/pkg/git"
	"github.com/mslinn/commitbench/pkg/logging"
	"github.com/mslinn/commitbench/pkg/orchestrator"
	"github.com/mslinn/commitbench/pkg/store"
	"github.com/mslinn/commitbench/pkg/timing"
	"github.com/mslinn/commitbench/pkg/upload"
)

var version = "dev" // Set by -ldflags during build

// switchFlag is a --name/--no-name pair. The negative form wins when both are given.
type switchFlag struct {
	on, off *bool
}

func newSwitch(fs *pflag.FlagSet, name string, def bool, usage string) switchFlag {
	s := switchFlag{on: new(bool), off: new(bool)}
	fs.BoolVar(s.on, name, def, usage)
	fs.BoolVar(s.off, "no-"+name, false, "Disable --"+name)
	return s
}

func (s switchFlag) value() bool {
	return *s.on && !*s.off
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	var (
		showVersion   bool
		showHelp      bool
		worktree      string
		startCommit   string
		endCommit     string
		cloneURL      string
		storeURL      string
		storeUser     string
		storePassword string
		benchPattern  string
		asIs          bool
		assumeYes     bool
		tagItems      []string
		logLevel      string
		outputDir     string
		mainline      string
		benchTimeout  time.Duration
	)

	fs := pflag.CommandLine
	fs.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	fs.StringVar(&worktree, "worktree", "", "Working copy of the library to benchmark (required)")
	fs.StringVar(&startCommit, "start-commit", "", "First commit to benchmark; empty benchmarks the current worktree state")
	fs.StringVar(&endCommit, "end-commit", "", "Last commit to benchmark; empty benchmarks only --start-commit")
	fs.StringVar(&cloneURL, "clone-url", "", "Git URL to clone into --worktree when it does not exist")
	fs.StringVar(&storeURL, "store-url", cfg.StoreURL, "Store URL (sqlite://, postgres://, http(s)://, redis://, mem://)")
	fs.StringVar(&storeUser, "store-user", cfg.StoreUser, "Store user")
	fs.StringVar(&storePassword, "store-password", cfg.StorePassword, "Store password (env: COMMITBENCH_STORE_PASSWORD or ES_PASSWORD)")
	fs.StringVar(&benchPattern, "bench-pattern", "", "Glob pattern to filter benchmarks by")
	fs.BoolVar(&asIs, "as-is", false, "Benchmark the current worktree without checking out a commit")
	fs.BoolVarP(&assumeYes, "yes", "y", false, "Overwrite existing result files without asking")
	fs.StringArrayVar(&tagItems, "tag", nil, "Tag as key=value attached to every document (repeatable)")
	fs.StringVar(&logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARNING, ERROR")
	fs.StringVar(&outputDir, "output-dir", cfg.GetOutputDir(), "Directory for result files")
	fs.StringVar(&mainline, "mainline", cfg.Mainline, "Branch checked out before enumerating commits")
	fs.DurationVar(&benchTimeout, "bench-timeout", 0, "Kill a measurement process after this long, e.g. 30m (0 = no limit)")

	deleteOutput := newSwitch(fs, "delete-output-files", false, "Delete result files after the run")
	deleteRepo := newSwitch(fs, "delete-repo", false, "Delete the worktree after the run")
	randomize := newSwitch(fs, "randomize", true, "Randomize the order of commits")
	timingMode := newSwitch(fs, "timing", true, "Run timing benchmarks")
	tracemallocMode := newSwitch(fs, "tracemalloc", true, "Run tracemalloc benchmarks")
	trackMemMode := newSwitch(fs, "track-memory", false, "Run memory tracking benchmarks")

	// compatibility with existing CI invocations
	fs.StringVar(&storeURL, "es-url", storeURL, "Alias for --store-url")
	fs.StringVar(&storeUser, "es-user", storeUser, "Alias for --store-user")
	fs.StringVar(&storePassword, "es-password", storePassword, "Alias for --store-password")
	for _, alias := range []string{"es-url", "es-user", "es-password"} {
		fs.MarkHidden(alias)
	}

	pflag.Parse()

	if showVersion {
		fmt.Printf("bench-commits version %s\n", version)
		return 0
	}
	if showHelp {
		printHelp()
		return 0
	}

	logger, err := logging.New(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if worktree == "" {
		fmt.Fprintf(os.Stderr, "Error: --worktree is required\n\n")
		printUsage()
		return 1
	}
	absWorktree, err := filepath.Abs(worktree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid worktree: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration in %s: %v\n", config.GetConfigPath(), err)
		return 1
	}

	if asIs && (startCommit != "" || endCommit != "") {
		fmt.Fprintf(os.Stderr, "Error: %v\n", orchestrator.ErrAsIsWithRange)
		return 1
	}

	tags, err := upload.ParseTags(tagItems)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var modes []executor.Mode
	for _, m := range []struct {
		sw   switchFlag
		mode executor.Mode
	}{
		{timingMode, executor.Timing},
		{tracemallocMode, executor.Tracemalloc},
		{trackMemMode, executor.TrackMemory},
	} {
		if m.sw.value() {
			modes = append(modes, m.mode)
		}
	}
	if len(modes) == 0 {
		logger.Warn("all benchmark modes are disabled, nothing will be measured")
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create output directory: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	var uploader *upload.Uploader
	if storeURL != "" {
		s, err := store.Open(ctx, upload.WithCredentials(storeURL, storeUser, storePassword), store.Options{
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			return 1
		}
		defer s.Close()
		uploader = &upload.Uploader{
			Store:          s,
			BenchmarkIndex: cfg.BenchmarkIndex,
			CommitIndex:    cfg.CommitIndex,
			RunID:          runID,
			Logger:         logger,
		}
	}

	var confirmer executor.Confirmer = executor.NewPromptConfirmer()
	if assumeYes {
		confirmer = executor.AlwaysOverwrite{}
	}

	g := git.New(absWorktree, logger)
	benchExec := &executor.Executor{
		Runner:        timing.ExecRunner{},
		Git:           g,
		Command:       cfg.BenchCommand,
		ModulePathVar: cfg.ModulePathVar,
		OutputDir:     outputDir,
		Timeout:       benchTimeout,
		Confirmer:     confirmer,
		Logger:        logger,
		Out:           os.Stdout,
	}

	runner := orchestrator.NewRunner(orchestrator.Options{
		WorkTree:          absWorktree,
		StartCommit:       startCommit,
		EndCommit:         endCommit,
		CloneURL:          cloneURL,
		Mainline:          mainline,
		Modes:             modes,
		Pattern:           benchPattern,
		Tags:              tags,
		AsIs:              asIs,
		Randomize:         randomize.value(),
		DeleteOutputFiles: deleteOutput.value(),
		DeleteRepo:        deleteRepo.value(),
	}, g, benchExec, uploader, logger)

	logger.Info("starting run", "run_id", runID, "worktree", absWorktree, "modes", len(modes), "upload", uploader != nil)

	report, err := runner.Execute(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Interrupted: result files were kept in %s\n", outputDir)
		return 1
	}
	if err != nil {
		if errors.Is(err, orchestrator.ErrAsIsWithRange) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		var cmdErr *git.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Output != "" {
			logger.Error("git failed", "op", cmdErr.Op, "output", cmdErr.Output)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger.Info("run finished", "run_id", runID, "state", report.State, "failed", len(report.Failed))
	return 0
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bench-commits --worktree DIR [OPTIONS]\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("bench-commits - Benchmark a library across a range of commits\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Checks out each commit of a range into the worktree, runs the measurement\n")
	fmt.Printf("  command once per benchmark mode, and uploads the aggregated statistics.\n")
	fmt.Printf("  A failing commit is reported at the end and does not stop the run.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bench-commits --worktree DIR [OPTIONS]\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Benchmark the current worktree state without touching git\n")
	fmt.Printf("  bench-commits --worktree ~/src/lib --as-is --store-url sqlite:///tmp/bench.db\n\n")

	fmt.Printf("  # Benchmark a range, timing only, in commit order\n")
	fmt.Printf("  bench-commits --worktree ~/src/lib --start-commit v1.0 --end-commit main \\\n")
	fmt.Printf("      --no-tracemalloc --no-randomize --tag runner=ci\n\n")

	fmt.Printf("EXIT STATUS:\n")
	fmt.Printf("  0  run finished, including runs where some commits failed\n")
	fmt.Printf("  1  invalid flags or configuration, commits could not be enumerated,\n")
	fmt.Printf("     or the run was interrupted\n")
}
