package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		SourceMode:       "poll",
		RepoURL:          "https://example.com/repo.git",
		StorageDriver:    "memory",
		MaxAttempts:      3,
		HeartbeatTimeout: 10 * time.Second,
		JobTimeout:       10 * time.Minute,
		PollInterval:     15 * time.Second,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "valid poll config",
			mutate: func(_ *Config) {},
		},
		{
			name: "hook mode needs no repo URL",
			mutate: func(c *Config) {
				c.SourceMode = "hook"
				c.RepoURL = ""
			},
		},
		{
			name:    "unknown source mode",
			mutate:  func(c *Config) { c.SourceMode = "carrier-pigeon" },
			wantErr: true,
		},
		{
			name: "poll mode without repo URL",
			mutate: func(c *Config) {
				c.RepoURL = ""
			},
			wantErr: true,
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.StorageDriver = "badger" },
			wantErr: true,
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "negative heartbeat timeout",
			mutate:  func(c *Config) { c.HeartbeatTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero job timeout",
			mutate:  func(c *Config) { c.JobTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.PollInterval = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRepoConfig(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := LoadRepoConfig(dir)
		if err != ErrRepoConfigNotFound {
			t.Fatalf("expected ErrRepoConfigNotFound, got %v", err)
		}
		if len(cfg.TestCommand) == 0 || cfg.TestCommand[0] != "go" {
			t.Errorf("expected default go test command, got %v", cfg.TestCommand)
		}
		if cfg.Format != "go-test-json" {
			t.Errorf("expected default format, got %q", cfg.Format)
		}
	})

	t.Run("parses test command and dir", func(t *testing.T) {
		dir := t.TempDir()
		content := "test_command: [make, check]\ndir: backend\n"
		if err := os.WriteFile(filepath.Join(dir, ".testherd.yml"), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadRepoConfig(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.TestCommand) != 2 || cfg.TestCommand[0] != "make" || cfg.TestCommand[1] != "check" {
			t.Errorf("unexpected test command: %v", cfg.TestCommand)
		}
		if cfg.Dir != "backend" {
			t.Errorf("unexpected dir: %q", cfg.Dir)
		}
	})

	t.Run("empty test command is rejected", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ".testherd.yml"), []byte("test_command: []\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRepoConfig(dir); err == nil {
			t.Fatal("expected an error for empty test_command")
		}
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		dir := t.TempDir()
		content := "test_command: [make, check]\nformat: junit-xml\n"
		if err := os.WriteFile(filepath.Join(dir, ".testherd.yml"), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRepoConfig(dir); err == nil {
			t.Fatal("expected an error for an unknown format")
		}
	})

	t.Run("malformed yaml is rejected", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ".testherd.yml"), []byte("test_command: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadRepoConfig(dir); err == nil {
			t.Fatal("expected a parse error")
		}
	})
}
