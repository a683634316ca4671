package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/mslinn/commitbench/pkg/config"
	"github.com/mslinn/commitbench/pkg/database"
	"github.com/mslinn/commitbench/pkg/store"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		storeURL    string
		benchIndex  string
		commitIndex string
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVar(&storeURL, "store-url", cfg.StoreURL, "sqlite:// or postgres:// store URL (default from config)")
	pflag.StringVar(&benchIndex, "index", cfg.BenchmarkIndex, "Benchmark index")
	pflag.StringVar(&commitIndex, "commit-index", cfg.CommitIndex, "Commit index")

	// Stop parsing at first non-flag argument (the subcommand)
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if showVersion {
		fmt.Printf("bench-query version %s\n", version)
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 || showHelp {
		printHelp()
		os.Exit(0)
	}

	if storeURL == "" {
		fmt.Fprintf(os.Stderr, "Error: --store-url is required (or set store_url with bench-config)\n")
		os.Exit(1)
	}

	s, err := store.OpenSQL(storeURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx := context.Background()
	var cmdErr error
	switch args[0] {
	case "commits":
		cmdErr = handleCommits(ctx, s.DB, commitIndex, args[1:])
	case "results":
		cmdErr = handleResults(ctx, s.DB, benchIndex, args[1:])
	case "compare":
		cmdErr = handleCompare(ctx, s.DB, benchIndex, args[1:])
	case "stats":
		cmdErr = handleStats(ctx, s.DB, benchIndex, commitIndex)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		s.Close()
		os.Exit(1)
	}
}

func handleCommits(ctx context.Context, db *database.DB, index string, args []string) error {
	fs := pflag.NewFlagSet("commits", pflag.ExitOnError)
	limit := fs.Int("limit", 0, "Show only the most recent N commits (0 = all)")
	fs.Parse(args)

	commits, err := db.ListCommits(ctx, index)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Printf("No commits in index %s\n", index)
		return nil
	}
	if *limit > 0 && len(commits) > *limit {
		commits = commits[len(commits)-*limit:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SHA\tDATE\tAUTHOR\tTITLE\n")
	fmt.Fprintf(w, "---\t----\t------\t-----\n")
	for _, c := range commits {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ShortRef, c.Timestamp.Format("2006-01-02 15:04"), c.Author, truncate(c.Title, 60))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d commits\n", len(commits))
	return nil
}

func handleResults(ctx context.Context, db *database.DB, index string, args []string) error {
	fs := pflag.NewFlagSet("results", pflag.ExitOnError)
	sha := fs.String("sha", "", "Commit sha or sha prefix")
	benchmark := fs.String("benchmark", "", "Benchmark name glob, e.g. '*spans*'")
	limit := fs.Int("limit", 50, "Maximum number of results to display")
	fs.Parse(args)

	results, err := db.ListResults(ctx, index, *sha, database.GlobToLike(*benchmark))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("No results found\n")
		return nil
	}

	total := len(results)
	if len(results) > *limit {
		results = results[:*limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "COMMIT\tBENCHMARK\tMEDIAN\tMAD\tMEAN\tSTDDEV\tRUNS\n")
	fmt.Fprintf(w, "------\t---------\t------\t---\t----\t------\t----\n")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%d\n",
			shortSHA(r.CommitSHA), r.Benchmark, r.Median, r.MedianAbsDev, r.Mean, r.MeanStdDev, r.RunsTotal)
	}
	w.Flush()

	if total > len(results) {
		fmt.Printf("\nShowing %d of %d results (use --limit to see more)\n", len(results), total)
	}
	return nil
}

func handleCompare(ctx context.Context, db *database.DB, index string, args []string) error {
	fs := pflag.NewFlagSet("compare", pflag.ExitOnError)
	from := fs.String("from", "", "Baseline commit sha or prefix (required)")
	to := fs.String("to", "", "Commit sha or prefix to compare (required)")
	benchmark := fs.String("benchmark", "", "Benchmark name glob")
	fs.Parse(args)

	if *from == "" || *to == "" {
		return fmt.Errorf("--from and --to are required")
	}

	base, err := latestMedians(ctx, db, index, *from, *benchmark)
	if err != nil {
		return err
	}
	head, err := latestMedians(ctx, db, index, *to, *benchmark)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "BENCHMARK\tFROM\tTO\tCHANGE\n")
	fmt.Fprintf(w, "---------\t----\t--\t------\n")
	compared := 0
	for _, name := range sortedKeys(head) {
		old, ok := base[name]
		if !ok {
			continue
		}
		compared++
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%s\n", name, old, head[name], percentChange(old, head[name]))
	}
	w.Flush()

	fmt.Printf("\nCompared %d benchmarks (%d only in --from, %d only in --to)\n",
		compared, len(base)-compared, len(head)-compared)
	return nil
}

// latestMedians maps each benchmark of a commit to the median of its most
// recent result.
func latestMedians(ctx context.Context, db *database.DB, index, sha, benchmark string) (map[string]float64, error) {
	results, err := db.ListResults(ctx, index, sha, database.GlobToLike(benchmark))
	if err != nil {
		return nil, err
	}
	medians := make(map[string]float64, len(results))
	for _, r := range results {
		medians[r.Benchmark] = r.Median
	}
	return medians, nil
}

func handleStats(ctx context.Context, db *database.DB, benchIndex, commitIndex string) error {
	results, err := db.GetStats(ctx, benchIndex)
	if err != nil {
		return err
	}
	commits, err := db.GetStats(ctx, commitIndex)
	if err != nil {
		return err
	}

	fmt.Printf("Store Statistics:\n\n")
	fmt.Printf("  Benchmark index:  %s\n", benchIndex)
	fmt.Printf("    Results:        %d\n", results.Results)
	fmt.Printf("    Runs:           %d\n", results.Runs)
	fmt.Printf("    Benchmarks:     %d\n", results.Benchmarks)
	fmt.Printf("  Commit index:     %s\n", commitIndex)
	fmt.Printf("    Commits:        %d\n", commits.Commits)
	return nil
}

func percentChange(old, cur float64) string {
	if old == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", (cur-old)/old*100)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bench-query [OPTIONS] COMMAND [ARGS...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  commits    List benchmarked commits\n")
	fmt.Fprintf(os.Stderr, "  results    Show benchmark results\n")
	fmt.Fprintf(os.Stderr, "  compare    Compare medians between two commits\n")
	fmt.Fprintf(os.Stderr, "  stats      Show store statistics\n")
}

func printHelp() {
	fmt.Printf("bench-query - Query benchmark results stored by bench-commits\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Reads a SQLite or PostgreSQL store to list benchmarked commits,\n")
	fmt.Printf("  show results, and compare two commits.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bench-query [OPTIONS] COMMAND [ARGS...]\n\n")

	fmt.Printf("COMMANDS:\n")
	fmt.Printf("  commits    List benchmarked commits, oldest first\n")
	fmt.Printf("  results    Show benchmark results\n")
	fmt.Printf("  compare    Compare medians between two commits\n")
	fmt.Printf("  stats      Show store statistics\n\n")

	fmt.Printf("GLOBAL OPTIONS:\n")
	fmt.Printf("  -h, --help             Show this help message\n")
	fmt.Printf("  -V, --version          Show version\n")
	fmt.Printf("  --store-url URL        sqlite:// or postgres:// store URL\n")
	fmt.Printf("  --index NAME           Benchmark index (default %s)\n", config.DefaultConfig().BenchmarkIndex)
	fmt.Printf("  --commit-index NAME    Commit index (default %s)\n\n", config.DefaultConfig().CommitIndex)

	fmt.Printf("EXAMPLES:\n")
	fmt.Printf("  # Last 10 benchmarked commits\n")
	fmt.Printf("  bench-query --store-url sqlite:///tmp/bench.db commits --limit 10\n\n")

	fmt.Printf("  # Span benchmarks of one commit\n")
	fmt.Printf("  bench-query results --sha 1a2b3c4d --benchmark '*spans*'\n\n")

	fmt.Printf("  # Median change between two commits\n")
	fmt.Printf("  bench-query compare --from 1a2b3c4d --to 5e6f7a8b\n\n")

	fmt.Printf("For command-specific help:\n")
	fmt.Printf("  bench-query COMMAND --help\n\n")
}
