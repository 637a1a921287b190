package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	ErrRepoConfigNotFound = errors.New("repo config file not found")
	ErrRepoConfigParsing  = errors.New("repo config parsing failed")
)

// RepoConfig represents the structure of the .testherd.yml file that a
// monitored repository may carry to describe how its suite is run.
type RepoConfig struct {
	// Command invoked to run the suite, split into argv form.
	// Example: ["go", "test", "-json", "./..."]
	TestCommand []string `yaml:"test_command"`

	// Directory inside the checkout to run the command from.
	Dir string `yaml:"dir"`

	// Output format produced by the command: "go-test-json" for suites that
	// emit go test -json events, or "exit-code" for anything else, where the
	// whole suite is judged by the command's exit status.
	Format string `yaml:"format"`
}

// DefaultRepoConfig returns the config used when a repository carries no
// .testherd.yml of its own.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		TestCommand: []string{"go", "test", "-json", "./..."},
		Format:      "go-test-json",
	}
}

// LoadRepoConfig loads and parses the .testherd.yml file from a checkout.
// A missing file yields the defaults along with ErrRepoConfigNotFound so
// callers can log the fallback.
func LoadRepoConfig(repoPath string) (*RepoConfig, error) {
	configPath := filepath.Join(repoPath, ".testherd.yml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRepoConfig(), ErrRepoConfigNotFound
		}
		return nil, fmt.Errorf("failed to read .testherd.yml: %w", err)
	}

	cfg := DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepoConfigParsing, err)
	}
	if len(cfg.TestCommand) == 0 {
		return nil, fmt.Errorf("%w: test_command must not be empty", ErrRepoConfigParsing)
	}
	if cfg.Format != "go-test-json" && cfg.Format != "exit-code" {
		return nil, fmt.Errorf("%w: unknown format %q", ErrRepoConfigParsing, cfg.Format)
	}
	return cfg, nil
}
