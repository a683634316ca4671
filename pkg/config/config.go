package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the bench tools
type Config struct {
	StoreURL       string   `yaml:"store_url,omitempty"`
	StoreUser      string   `yaml:"store_user,omitempty"`
	StorePassword  string   `yaml:"-"` // environment only
	BenchCommand   []string `yaml:"bench_command"`
	ModulePathVar  string   `yaml:"module_path_var"`
	OutputDir      string   `yaml:"output_dir"`
	Mainline       string   `yaml:"mainline"`
	BenchmarkIndex string   `yaml:"benchmark_index"`
	CommitIndex    string   `yaml:"commit_index"`
	InfluxOrg      string   `yaml:"influx_org,omitempty"`
	InfluxBucket   string   `yaml:"influx_bucket,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BenchCommand:   []string{"python", "run_bench.py"},
		ModulePathVar:  "PYTHONPATH",
		OutputDir:      ".",
		Mainline:       "main",
		BenchmarkIndex: "benchmark-python",
		CommitIndex:    "benchmark-py-commits",
	}
}

// Load loads configuration from file and environment variables
// Priority: environment variables > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromFile(cfg, GetConfigPath()); err != nil {
		// Config file is optional, so we just skip if not found
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// LoadFile loads the config file over the defaults without applying
// environment overrides. Use it when the result is saved back to disk.
func LoadFile() (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, GetConfigPath()); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return cfg, nil
}

// EnvOverrides lists the environment variables that override config file
// keys, in the order they are applied.
var EnvOverrides = []struct {
	Name string
	Key  string
}{
	{"COMMITBENCH_STORE_URL", "store_url"},
	{"COMMITBENCH_STORE_USER", "store_user"},
	{"ES_PASSWORD", "store_password"}, // existing CI secrets
	{"COMMITBENCH_STORE_PASSWORD", "store_password"},
	{"COMMITBENCH_OUTPUT_DIR", "output_dir"},
	{"COMMITBENCH_MAINLINE", "mainline"},
}

func (cfg *Config) applyEnv() {
	fields := cfg.fields()
	for _, o := range EnvOverrides {
		v := os.Getenv(o.Name)
		if v == "" {
			continue
		}
		if o.Key == "store_password" {
			cfg.StorePassword = v
			continue
		}
		*fields[o.Key] = v
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Save saves the configuration to a file
func (cfg *Config) Save(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	configPath := os.Getenv("COMMITBENCH_CONFIG")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, ".commitbench.yaml")
		} else {
			configPath = ".commitbench.yaml"
		}
	}
	return configPath
}

// Validate checks the settings a benchmark run depends on
func (cfg *Config) Validate() error {
	var errs []error
	if len(cfg.BenchCommand) == 0 || strings.TrimSpace(cfg.BenchCommand[0]) == "" {
		errs = append(errs, errors.New("bench_command must not be empty"))
	}
	if cfg.ModulePathVar == "" {
		errs = append(errs, errors.New("module_path_var must not be empty"))
	}
	if cfg.BenchmarkIndex == "" || cfg.CommitIndex == "" {
		errs = append(errs, errors.New("benchmark_index and commit_index must not be empty"))
	} else if cfg.BenchmarkIndex == cfg.CommitIndex {
		errs = append(errs, errors.New("benchmark_index and commit_index must differ"))
	}
	return errors.Join(errs...)
}

// GetOutputDir returns the result file directory, expanding ~/ if needed
func (cfg *Config) GetOutputDir() string {
	if strings.HasPrefix(cfg.OutputDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, cfg.OutputDir[2:])
		}
	}
	return cfg.OutputDir
}

// fields maps the string-valued config file keys to their fields
func (cfg *Config) fields() map[string]*string {
	return map[string]*string{
		"store_url":       &cfg.StoreURL,
		"store_user":      &cfg.StoreUser,
		"module_path_var": &cfg.ModulePathVar,
		"output_dir":      &cfg.OutputDir,
		"mainline":        &cfg.Mainline,
		"benchmark_index": &cfg.BenchmarkIndex,
		"commit_index":    &cfg.CommitIndex,
		"influx_org":      &cfg.InfluxOrg,
		"influx_bucket":   &cfg.InfluxBucket,
	}
}

// Keys lists the keys accepted by Get and Set
func Keys() []string {
	keys := []string{"bench_command"}
	for k := range DefaultConfig().fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key. bench_command is space separated.
func (cfg *Config) Get(key string) (string, error) {
	if key == "bench_command" {
		return strings.Join(cfg.BenchCommand, " "), nil
	}
	if p, ok := cfg.fields()[key]; ok {
		return *p, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set assigns value to key. bench_command is split on whitespace.
func (cfg *Config) Set(key, value string) error {
	if key == "bench_command" {
		cfg.BenchCommand = strings.Fields(value)
		return nil
	}
	if p, ok := cfg.fields()[key]; ok {
		*p = value
		return nil
	}
	return fmt.Errorf("unknown key: %s", key)
}
