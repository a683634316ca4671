package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/mslinn/commitbench/pkg/config"
)

var version = "dev" // Set by -ldflags during build

type tool struct {
	name        string
	aliases     []string
	description string
}

var tools = []tool{
	{"commits", []string{"run"}, "Benchmark a range of commits and upload the results"},
	{"import", nil, "Upload result files kept by an earlier run"},
	{"query", []string{"q"}, "Compare and list stored results"},
	{"config", nil, "Manage configuration"},
}

var errUsage = errors.New("usage")

// resolve maps the command line to the bench-* tool to execute and its
// arguments. "help CMD" becomes "bench-CMD --help".
func resolve(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, errUsage
	}
	name, rest := args[0], args[1:]
	if name == "help" {
		if len(rest) == 0 {
			return "", nil, errUsage
		}
		name, rest = rest[0], []string{"--help"}
	}
	for _, t := range tools {
		if t.name == name {
			return "bench-" + t.name, rest, nil
		}
		for _, a := range t.aliases {
			if a == name {
				return "bench-" + t.name, rest, nil
			}
		}
	}
	return "", nil, fmt.Errorf("unknown command '%s'", name)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-V":
			fmt.Printf("bench version %s\n", version)
			return
		case "--help", "-h":
			printHelp()
			return
		case "doctor":
			os.Exit(doctor(os.Stdout, exec.LookPath))
		}
	}

	name, args, err := resolve(os.Args[1:])
	if errors.Is(err, errUsage) {
		printHelp()
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s not found in PATH (try: go install ./cmd/...)\n", name)
		os.Exit(1)
	}

	// Replace this process so Ctrl-C reaches bench-commits directly and
	// result files are kept on interrupt
	argv := append([]string{filepath.Base(path)}, args...)
	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		cmd := exec.Command(path, args...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				os.Exit(exitErr.ExitCode())
			}
			fmt.Fprintf(os.Stderr, "Error executing %s: %v\n", name, err)
			os.Exit(1)
		}
	}
}

// doctor reports whether everything a benchmark run needs is installed and
// configured. It returns the process exit status.
func doctor(w io.Writer, lookPath func(string) (string, error)) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	problems := 0
	check := func(what, detail string, ok bool) {
		mark := "✓"
		if !ok {
			mark = "✗"
			problems++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, what, detail)
	}
	found := func(name string) {
		path, err := lookPath(name)
		if err != nil {
			check(name, "not found in PATH", false)
			return
		}
		check(name, path, true)
	}

	found("git")
	for _, t := range tools {
		found("bench-" + t.name)
	}

	cfg, err := config.Load()
	if err != nil {
		check("config", err.Error(), false)
	} else {
		if err := cfg.Validate(); err != nil {
			check("config", err.Error(), false)
		} else {
			check("config", config.GetConfigPath(), true)
		}
		if len(cfg.BenchCommand) > 0 {
			found(cfg.BenchCommand[0])
		} else {
			check("bench_command", "not set", false)
		}
		if cfg.StoreURL == "" {
			check("store_url", "not set (bench-config set store_url URL)", false)
		} else {
			check("store_url", "set", true)
		}
	}
	tw.Flush()

	if problems > 0 {
		fmt.Fprintf(w, "\n%d problem(s) found\n", problems)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bench <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, t := range tools {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", t.name, t.description)
	}
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "doctor", "Check that a run has what it needs")
	fmt.Fprintf(os.Stderr, "\nRun 'bench help <command>' for the options of a command.\n")
}

func printHelp() {
	fmt.Printf("bench - Track benchmark results across git commits\n\n")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Checks out each commit of a range, runs the library's benchmark suite,\n")
	fmt.Printf("  and stores per-benchmark statistics so regressions can be traced to\n")
	fmt.Printf("  the commit that introduced them.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bench <command> [options]\n")
	fmt.Printf("  bench help <command>\n\n")

	fmt.Printf("COMMANDS:\n")
	for _, t := range tools {
		fmt.Printf("  %-10s %s\n", t.name, t.description)
		for _, a := range t.aliases {
			fmt.Printf("  %-10s Alias for %s\n", a, t.name)
		}
	}
	fmt.Printf("  %-10s %s\n\n", "doctor", "Check that git, the bench tools and the store are set up")

	fmt.Printf("WORKFLOWS:\n")
	fmt.Printf("  Measure the commits a branch adds to the mainline:\n")
	fmt.Printf("    bench commits --worktree ~/src/lib --start-commit main --end-commit my-branch\n\n")

	fmt.Printf("  Measure the uncommitted state of a working copy:\n")
	fmt.Printf("    bench commits --worktree ~/src/lib\n\n")

	fmt.Printf("  Bisect a regression by timing only the span benchmarks:\n")
	fmt.Printf("    bench commits --worktree ~/src/lib --start-commit v1.2.0 --end-commit v1.3.0 --bench-pattern '*spans*'\n")
	fmt.Printf("    bench query compare --from <good sha> --to <bad sha> --benchmark '*spans*'\n\n")

	fmt.Printf("  Upload result files kept after an interrupted run:\n")
	fmt.Printf("    bench import --worktree ~/src/lib result.*.json\n\n")

	fmt.Printf("GETTING STARTED:\n")
	fmt.Printf("  bench config init\n")
	fmt.Printf("  bench config set store_url sqlite://$HOME/bench.db\n")
	fmt.Printf("  bench doctor\n")
}
