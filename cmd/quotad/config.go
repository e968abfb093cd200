package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultAddr         = "127.0.0.1:8095"
	defaultPollInterval = 5 * time.Minute
)

type Config struct {
	DBPath       string
	AccountsPath string
	Addr         string
	PollInterval time.Duration
	LogDir       string
	RedisAddr    string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	defaultDBPath := filepath.Join(cwd, "quotad.db")
	defaultAccountsPath := filepath.Join(cwd, "accounts.json")

	dbPath := envOrDefault("QUOTAD_DB_PATH", defaultDBPath)
	accountsPath := envOrDefault("QUOTAD_ACCOUNTS_PATH", defaultAccountsPath)
	addr := addrFromEnv(defaultAddr)
	pollInterval := defaultPollInterval
	if pollIntervalEnv := os.Getenv("QUOTAD_POLL_INTERVAL"); pollIntervalEnv != "" {
		parsed, err := time.ParseDuration(pollIntervalEnv)
		if err != nil {
			return Config{}, fmt.Errorf("invalid QUOTAD_POLL_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("QUOTAD_POLL_INTERVAL must be positive")
		}
		pollInterval = parsed
	}
	logDir := os.Getenv("QUOTAD_LOG_DIR")
	redisAddr := os.Getenv("QUOTAD_REDIS_ADDR")

	flagSet := flag.NewFlagSet("quotad", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagAccounts := flagSet.String("accounts", accountsPath, "path to accounts JSON")
	flagAddr := flagSet.String("addr", addr, "HTTP listen address")
	flagPollInterval := flagSet.String("poll-interval", pollInterval.String(), "provider poll interval")
	flagLogDir := flagSet.String("log-dir", logDir, "directory for rotated log files (empty disables file logging)")
	flagRedisAddr := flagSet.String("redis-addr", redisAddr, "Redis address for cycle state (empty uses SQLite)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	pollIntervalParsed, err := time.ParseDuration(*flagPollInterval)
	if err != nil {
		return Config{}, fmt.Errorf("invalid poll interval: %w", err)
	}
	if pollIntervalParsed <= 0 {
		return Config{}, errors.New("poll interval must be positive")
	}

	config := Config{
		DBPath:       resolvePath(*flagDB, cwd),
		AccountsPath: resolvePath(*flagAccounts, cwd),
		Addr:         strings.TrimSpace(*flagAddr),
		PollInterval: pollIntervalParsed,
		LogDir:       resolvePath(*flagLogDir, cwd),
		RedisAddr:    strings.TrimSpace(*flagRedisAddr),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.DBPath == "" {
		return Config{}, errors.New("db path cannot be empty")
	}
	if config.AccountsPath == "" {
		return Config{}, errors.New("accounts path cannot be empty")
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("QUOTAD_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("QUOTAD_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
