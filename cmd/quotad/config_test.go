package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cwd, _ := os.Getwd()
	if cfg.DBPath != filepath.Join(cwd, "quotad.db") {
		t.Errorf("unexpected default DB path: %s", cfg.DBPath)
	}
	if cfg.AccountsPath != filepath.Join(cwd, "accounts.json") {
		t.Errorf("unexpected default accounts path: %s", cfg.AccountsPath)
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("unexpected default addr: %s", cfg.Addr)
	}
	if cfg.PollInterval != defaultPollInterval {
		t.Errorf("unexpected default poll interval: %s", cfg.PollInterval)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("expected empty redis addr, got %s", cfg.RedisAddr)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("QUOTAD_DB_PATH", "/env/quotad.db")
	t.Setenv("QUOTAD_ADDR", "127.0.0.1:9000")

	cfg, err := LoadConfig([]string{"-db", "/flag/quotad.db", "-addr", "127.0.0.1:9001"})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DBPath != "/flag/quotad.db" {
		t.Errorf("flag should override env, got %s", cfg.DBPath)
	}
	if cfg.Addr != "127.0.0.1:9001" {
		t.Errorf("flag should override env, got %s", cfg.Addr)
	}
}

func TestLoadConfig_PortEnv(t *testing.T) {
	t.Setenv("QUOTAD_PORT", "9095")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9095" {
		t.Errorf("unexpected addr from QUOTAD_PORT: %s", cfg.Addr)
	}
}

func TestLoadConfig_PollIntervalValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		expectError bool
		errorSubstr string
	}{
		{
			name:        "valid poll interval from flag",
			args:        []string{"-poll-interval", "30s"},
			expectError: false,
		},
		{
			name:        "zero poll interval from flag",
			args:        []string{"-poll-interval", "0s"},
			expectError: true,
			errorSubstr: "poll interval must be positive",
		},
		{
			name:        "negative poll interval from flag",
			args:        []string{"-poll-interval", "-5s"},
			expectError: true,
			errorSubstr: "poll interval must be positive",
		},
		{
			name:        "valid poll interval from env",
			envVars:     map[string]string{"QUOTAD_POLL_INTERVAL": "90s"},
			expectError: false,
		},
		{
			name:        "zero poll interval from env",
			envVars:     map[string]string{"QUOTAD_POLL_INTERVAL": "0s"},
			expectError: true,
			errorSubstr: "QUOTAD_POLL_INTERVAL must be positive",
		},
		{
			name:        "invalid poll interval format from env",
			envVars:     map[string]string{"QUOTAD_POLL_INTERVAL": "invalid"},
			expectError: true,
			errorSubstr: "invalid QUOTAD_POLL_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(tt.args)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing %q, got nil", tt.errorSubstr)
				} else if !strings.Contains(err.Error(), tt.errorSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errorSubstr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.PollInterval <= 0 {
				t.Errorf("expected positive poll interval, got %s", cfg.PollInterval)
			}
		})
	}
}

func TestLoadConfig_RelativePathsResolved(t *testing.T) {
	cfg, err := LoadConfig([]string{"-db", "data/quotad.db", "-accounts", "conf/accounts.json"})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cwd, _ := os.Getwd()
	if cfg.DBPath != filepath.Join(cwd, "data", "quotad.db") {
		t.Errorf("relative db path not resolved: %s", cfg.DBPath)
	}
	if cfg.AccountsPath != filepath.Join(cwd, "conf", "accounts.json") {
		t.Errorf("relative accounts path not resolved: %s", cfg.AccountsPath)
	}
}

func TestLoadConfig_EmptyAddrRejected(t *testing.T) {
	_, err := LoadConfig([]string{"-addr", "  "})
	if err == nil {
		t.Fatal("expected error for empty addr")
	}
	if !strings.Contains(err.Error(), "addr cannot be empty") {
		t.Errorf("unexpected error: %v", err)
	}
}
