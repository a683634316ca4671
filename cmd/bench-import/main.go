package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/mslinn/commitbench/pkg/commits"
	"github.com/mslinn/commitbench/pkg/config"
	"github.com/mslinn/commitbench/pkg/executor"
	"github.com/mslinn/commitbench/pkg/git"
	"github.com/mslinn/commitbench/pkg/logging"
	"github.com/mslinn/commitbench/pkg/store"
	"github.com/mslinn/commitbench/pkg/upload"
)

var version = "dev" // Set by -ldflags during build

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
		storeURL      string
		storeUser     string
		storePassword string
		tagItems      []string
		logLevel      string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVar(&worktree, "worktree", ".", "Working copy the result files were measured in")
	pflag.StringVar(&storeURL, "store-url", cfg.StoreURL, "Store URL (default from config)")
	pflag.StringVar(&storeUser, "store-user", cfg.StoreUser, "Store user")
	pflag.StringVar(&storePassword, "store-password", cfg.StorePassword, "Store password")
	pflag.StringArrayVar(&tagItems, "tag", nil, "Tag as key=value attached to every document (repeatable)")
	pflag.StringVar(&logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARNING, ERROR")

	pflag.Parse()

	if showVersion {
		fmt.Printf("bench-import version %s\n", version)
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

	if len(pflag.Args()) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no result files given\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bench-import [OPTIONS] FILE...\n")
		return 1
	}
	if storeURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --store-url is required (or set store_url with bench-config)\n")
		return 1
	}

	tags, err := upload.ParseTags(tagItems)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Group files by commit so each commit summary is upserted once
	var order []string
	bySHA := make(map[string][]string)
	for _, path := range pflag.Args() {
		_, sha, ok := executor.ParseOutputFile(path)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: %s is not a result.<mode>.<sha>.json file\n", path)
			return 1
		}
		if _, seen := bySHA[sha]; !seen {
			order = append(order, sha)
		}
		bySHA[sha] = append(bySHA[sha], path)
	}

	absWorktree, err := filepath.Abs(worktree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid worktree: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, upload.WithCredentials(storeURL, storeUser, storePassword), store.Options{
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer s.Close()

	uploader := &upload.Uploader{
		Store:          s,
		BenchmarkIndex: cfg.BenchmarkIndex,
		CommitIndex:    cfg.CommitIndex,
		RunID:          uuid.NewString(),
		Logger:         logger,
	}

	g := git.New(absWorktree, logger)
	failed := 0
	for _, sha := range order {
		resolved, err := commits.Enumerate(ctx, g, sha, "")
		if err != nil {
			logger.Error("failed to read commit metadata", "sha", sha, "error", err)
			failed++
			continue
		}
		commit := resolved[0]

		if err := uploader.Upload(ctx, bySHA[sha], commit, tags); err != nil {
			logger.Error("upload failed", "sha", commit.ShortSHA(), "error", err)
			failed++
			continue
		}
		fmt.Printf("✓ Imported %d result files for commit %s\n", len(bySHA[sha]), commit.ShortSHA())
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d of %d commits failed to import\n", failed, len(order))
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Printf("bench-import - Upload existing result files to a store\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Uploads result files kept by bench-commits (for example after the store\n")
	fmt.Printf("  was unreachable) without measuring again. The commit is taken from the\n")
	fmt.Printf("  file name and its metadata is read from --worktree.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bench-import [OPTIONS] FILE...\n\n")

	fmt.Printf("OPTIONS:\n")
	pflag.PrintDefaults()

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  # Upload every result file in the current directory\n")
	fmt.Printf("  bench-import --worktree ~/src/lib result.*.json\n\n")

	fmt.Printf("  # Upload to a different store than the configured one\n")
	fmt.Printf("  bench-import --store-url sqlite:///tmp/bench.db result.time.1a2b3c4d*.json\n\n")
}
