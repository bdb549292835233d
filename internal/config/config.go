package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/credits.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the credit ledger service.
type Config struct {
	Environment string
	ListenAddr  string

	// Storage backend: sqlite (default) or postgres.
	Backend     string
	LedgerPath  string
	PostgresDSN string
	// Connection pool settings for postgres.
	PGMaxOpen         int
	PGMaxIdle         int
	PGConnLifetimeMin int
	PGConnIdleMin     int

	// LockWait bounds the per-counselor critical section wait.
	LockWait time.Duration
	// AuditInterval is the consistency sweep cadence; 0 disables the
	// background auditor (the reconcile endpoint still works).
	AuditInterval time.Duration

	// AuthToken, when set, is required as a bearer token on billing routes.
	AuthToken string

	LogFile  string
	LogLevel string

	// Rate limiting for the billing API.
	RateLimitEnabled   bool
	RateLimitPerSecond float64
	RateLimitBurst     float64
	// RedisAddr switches the limiter to the distributed store when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PackagesFile points at the YAML credit package catalog.
	PackagesFile string
}

// Load reads the current environment and the matching credits config file,
// applying CREDITS_* environment variable overrides on top.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := Config{
		Environment:        s.Environment,
		ListenAddr:         firstNonEmpty(os.Getenv("CREDITS_LISTEN_ADDR"), merged["listen_addr"], ":8084"),
		Backend:            strings.ToLower(firstNonEmpty(os.Getenv("CREDITS_BACKEND"), merged["backend"], "sqlite")),
		LedgerPath:         firstNonEmpty(os.Getenv("CREDITS_LEDGER_PATH"), merged["ledger_path"], defaultLedgerPath()),
		PostgresDSN:        firstNonEmpty(os.Getenv("CREDITS_POSTGRES_DSN"), merged["postgres_dsn"]),
		PGMaxOpen:          parseOptionalInt(firstNonEmpty(os.Getenv("CREDITS_PG_MAX_OPEN"), merged["pg_max_open"]), 20),
		PGMaxIdle:          parseOptionalInt(firstNonEmpty(os.Getenv("CREDITS_PG_MAX_IDLE"), merged["pg_max_idle"]), 5),
		PGConnLifetimeMin:  parseOptionalInt(merged["pg_conn_lifetime_minutes"], 60),
		PGConnIdleMin:      parseOptionalInt(merged["pg_conn_idle_minutes"], 10),
		AuthToken:          firstNonEmpty(os.Getenv("CREDITS_AUTH_TOKEN"), merged["auth_token"]),
		LogFile:            firstNonEmpty(os.Getenv("CREDITS_LOG_FILE"), merged["log_file"]),
		LogLevel:           firstNonEmpty(os.Getenv("CREDITS_LOG_LEVEL"), merged["log_level"], "info"),
		RateLimitEnabled:   parseOptionalBool(firstNonEmpty(os.Getenv("CREDITS_RATE_LIMIT_ENABLED"), merged["rate_limit_enabled"]), true),
		RateLimitPerSecond: parseOptionalFloat(merged["rate_limit_per_second"], 20),
		RateLimitBurst:     parseOptionalFloat(merged["rate_limit_burst"], 40),
		RedisAddr:          firstNonEmpty(os.Getenv("CREDITS_REDIS_ADDR"), merged["redis_addr"]),
		RedisPassword:      firstNonEmpty(os.Getenv("CREDITS_REDIS_PASSWORD"), merged["redis_password"]),
		RedisDB:            parseOptionalInt(merged["redis_db"], 0),
		PackagesFile:       firstNonEmpty(os.Getenv("CREDITS_PACKAGES_FILE"), merged["packages_file"]),
	}

	switch cfg.Backend {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid backend %q", cfg.Backend)
	}
	if cfg.Backend == "postgres" && cfg.PostgresDSN == "" {
		return Config{}, errors.New("postgres backend requires postgres_dsn")
	}

	if v := firstNonEmpty(os.Getenv("CREDITS_LOCK_WAIT"), merged["lock_wait"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid lock_wait %q: %w", v, err)
		}
		cfg.LockWait = dur
	} else {
		cfg.LockWait = 5 * time.Second
	}

	if v := firstNonEmpty(os.Getenv("CREDITS_AUDIT_INTERVAL"), merged["audit_interval"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid audit_interval %q: %w", v, err)
		}
		cfg.AuditInterval = dur
	} else {
		cfg.AuditInterval = time.Hour
	}

	return cfg, nil
}

func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data/credits.db"
	}
	return filepath.Join(home, ".careercredits", "credits.db")
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalFloat(v string, fallback float64) float64 {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
