package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/mslinn/commitbench/pkg/config"
)

var version = "dev" // Set by -ldflags during build

func main() {
	var (
		showVersion bool
		showHelp    bool
		configPath  string
	)

	pflag.BoolVarP(&showVersion, "version", "V", false, "Show version and exit")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show this help message")
	pflag.StringVar(&configPath, "config", "", "Path to config file (default: ~/.commitbench.yaml)")

	pflag.Parse()

	if showVersion {
		fmt.Printf("bench-config version %s\n", version)
		os.Exit(0)
	}

	if showHelp {
		printHelp()
		os.Exit(0)
	}

	args := pflag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: subcommand required\n\n")
		printUsage()
		os.Exit(1)
	}

	if configPath != "" {
		os.Setenv("COMMITBENCH_CONFIG", configPath)
	}

	switch args[0] {
	case "init":
		handleInit(args[1:])
	case "set":
		handleSet(args[1:])
	case "get":
		handleGet(args[1:])
	case "show":
		handleShow()
	case "path":
		fmt.Println(config.GetConfigPath())
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown subcommand '%s'\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func handleInit(args []string) {
	var force bool
	flags := pflag.NewFlagSet("init", pflag.ExitOnError)
	flags.BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	flags.Parse(args)

	configPath := config.GetConfigPath()
	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Fprintf(os.Stderr, "Error: config file already exists at %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created config file at %s\n", configPath)
	fmt.Println("\nDefault configuration:")
	printValues(cfg, "  ")
	fmt.Println("\nEdit the file or use 'bench-config set' to customize.")
}

func handleSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "Error: 'set' requires KEY and VALUE arguments\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bench-config set KEY VALUE\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	// Environment overrides must not end up in the file
	cfg, err := config.LoadFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try running 'bench-config init' first\n")
		os.Exit(1)
	}

	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Valid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Save(config.GetConfigPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Set %s = %s\n", key, value)
}

func handleGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: 'get' requires KEY argument\n\n")
		fmt.Fprintf(os.Stderr, "Usage: bench-config get KEY\n")
		fmt.Fprintf(os.Stderr, "\nValid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	value, err := cfg.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Valid keys: %s\n", strings.Join(config.Keys(), ", "))
		os.Exit(1)
	}
	fmt.Println(value)
}

func handleShow() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration from: %s\n\n", config.GetConfigPath())
	printValues(cfg, "")

	fmt.Println("\nEnvironment variable overrides:")
	for _, o := range config.EnvOverrides {
		v := os.Getenv(o.Name)
		if v == "" {
			continue
		}
		if o.Key == "store_password" {
			v = "****"
		}
		fmt.Printf("  %s=%s (overrides %s)\n", o.Name, v, o.Key)
	}
}

func printValues(cfg *config.Config, indent string) {
	for _, key := range config.Keys() {
		value, _ := cfg.Get(key)
		fmt.Printf("%s%-17s %s\n", indent, key+":", value)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: bench-config [OPTIONS] SUBCOMMAND\n\n")
	fmt.Fprintf(os.Stderr, "Manage commit benchmark configuration\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  init          Create default config file\n")
	fmt.Fprintf(os.Stderr, "  set KEY VAL   Set configuration value\n")
	fmt.Fprintf(os.Stderr, "  get KEY       Get configuration value\n")
	fmt.Fprintf(os.Stderr, "  show          Show all configuration\n")
	fmt.Fprintf(os.Stderr, "  path          Show config file path\n\n")
	pflag.PrintDefaults()
}

func printHelp() {
	fmt.Printf("bench-config - Manage commit benchmark configuration\n\n")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Printf("DESCRIPTION:\n")
	fmt.Printf("  Manages configuration for the bench tools. Configuration is stored in\n")
	fmt.Printf("  ~/.commitbench.yaml by default and can be overridden with environment variables.\n")
	fmt.Printf("  The store password is never written to the file.\n\n")

	fmt.Printf("USAGE:\n")
	fmt.Printf("  bench-config [OPTIONS] SUBCOMMAND\n\n")

	fmt.Printf("SUBCOMMANDS:\n")
	fmt.Printf("  init          Create default configuration file\n")
	fmt.Printf("  set KEY VAL   Set a configuration value\n")
	fmt.Printf("  get KEY       Get a configuration value\n")
	fmt.Printf("  show          Show all configuration and active overrides\n")
	fmt.Printf("  path          Show config file path\n\n")

	fmt.Printf("KEYS:\n")
	fmt.Printf("  %s\n\n", strings.Join(config.Keys(), "\n  "))

	fmt.Printf("ENVIRONMENT:\n")
	fmt.Printf("  COMMITBENCH_CONFIG           Config file path\n")
	for _, o := range config.EnvOverrides {
		fmt.Printf("  %-28s Overrides %s\n", o.Name, o.Key)
	}

	fmt.Printf("\nEXAMPLES:\n")
	fmt.Printf("  bench-config init\n")
	fmt.Printf("  bench-config set store_url sqlite://$HOME/bench.db\n")
	fmt.Printf("  bench-config set bench_command python3 tests/run_bench.py\n")
	fmt.Printf("  bench-config show\n")
}
