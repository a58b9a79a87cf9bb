package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode controls which features are enabled.
// - off: HTML console and form submission only
// - monitor (default): console + api + events + metrics + history storage
type Mode string

const (
	ModeOff     Mode = "off"
	ModeMonitor Mode = "monitor"
)

// StorageType controls the submission history backend.
type StorageType string

const (
	StorageSQLite StorageType = "sqlite"
	StorageMemory StorageType = "memory"
	StorageOff    StorageType = "off"
)

// SubmitPolicy controls overlapping submissions for one provider.
type SubmitPolicy string

const (
	// PolicyLatest shows only the newest reply and discards stale ones.
	PolicyLatest SubmitPolicy = "latest"
	// PolicyReject refuses a submit while one is in flight.
	PolicyReject SubmitPolicy = "reject"
)

// Features derived from MODE and the per-feature switches.
type Features struct {
	API         bool
	Events      bool
	Metrics     bool
	Storage     bool
	HealthCheck bool
}

// Config contains all runtime configuration for the console.
type Config struct {
	// Core
	Mode          Mode
	ListenAddr    string
	BackendURL    string
	ProvidersFile string
	LogLevel      string

	// Submission
	SubmitTimeout    time.Duration
	SubmitPolicy     SubmitPolicy
	DateLookbackDays int
	ResponseMaxBytes int64

	// Storage
	Storage        StorageType
	StoragePath    string
	StorageMaxRows int

	// Observability
	MetricsEnabled      bool
	EventsEnabled       bool
	EventBuffer         int
	RecentBuffer        int
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	HealthCheckPath     string

	// HTTP
	CORSAllowOrigin     string
	RequestBodyMaxBytes int64
}

// Features returns the feature flags derived from the current config.
func (c *Config) Features() Features {
	if c.Mode == ModeOff {
		return Features{}
	}
	return Features{
		API:         true,
		Events:      c.EventsEnabled,
		Metrics:     c.MetricsEnabled,
		Storage:     c.Storage != StorageOff,
		HealthCheck: c.HealthCheckInterval > 0,
	}
}

// Load parses env vars and returns a validated Config.
func Load() (Config, error) {
	mode := Mode(getEnvString("MODE", string(ModeMonitor)))

	storageDefault := StorageSQLite
	if mode == ModeOff {
		storageDefault = StorageOff
	}

	cfg := Config{
		Mode:          mode,
		ListenAddr:    getEnvString("LISTEN_ADDR", ":5001"),
		BackendURL:    strings.TrimRight(getEnvString("BACKEND_URL", "http://127.0.0.1:5000"), "/"),
		ProvidersFile: getEnvString("PROVIDERS_FILE", ""),
		LogLevel:      getEnvString("LOG_LEVEL", "info"),

		SubmitTimeout:    getEnvDuration("SUBMIT_TIMEOUT", 0),
		SubmitPolicy:     SubmitPolicy(getEnvString("SUBMIT_POLICY", string(PolicyLatest))),
		DateLookbackDays: getEnvInt("DATE_LOOKBACK_DAYS", 7),
		ResponseMaxBytes: getEnvInt64("RESPONSE_MAX_BYTES", 64*1024*1024),

		Storage:        StorageType(getEnvString("STORAGE", string(storageDefault))),
		StoragePath:    getEnvString("STORAGE_PATH", "/data/polltool.sqlite"),
		StorageMaxRows: getEnvInt("STORAGE_MAX_ROWS", 3000),

		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		EventsEnabled:       getEnvBool("EVENTS_ENABLED", true),
		EventBuffer:         getEnvInt("EVENT_BUFFER", 100),
		RecentBuffer:        getEnvInt("RECENT_BUFFER", 200),
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		HealthCheckTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		HealthCheckPath:     getEnvString("HEALTH_CHECK_PATH", "/"),

		CORSAllowOrigin:     getEnvString("CORS_ALLOW_ORIGIN", "*"),
		RequestBodyMaxBytes: getEnvInt64("REQUEST_BODY_MAX_BYTES", 1024*1024),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks configuration constraints.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeOff, ModeMonitor:
		// ok
	default:
		return fmt.Errorf("invalid MODE: %q (must be off|monitor)", c.Mode)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute http(s) url, got %q", c.BackendURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BACKEND_URL scheme must be http or https, got %q", u.Scheme)
	}

	switch c.SubmitPolicy {
	case PolicyLatest, PolicyReject:
		// ok
	default:
		return fmt.Errorf("invalid SUBMIT_POLICY: %q (must be latest|reject)", c.SubmitPolicy)
	}
	if c.SubmitTimeout < 0 {
		return fmt.Errorf("SUBMIT_TIMEOUT must be >= 0")
	}
	if c.DateLookbackDays < 1 {
		return fmt.Errorf("DATE_LOOKBACK_DAYS must be >= 1")
	}
	if c.ResponseMaxBytes < 1024 {
		return fmt.Errorf("RESPONSE_MAX_BYTES must be >= 1024")
	}

	switch c.Storage {
	case StorageSQLite, StorageMemory, StorageOff:
		// ok
	default:
		return fmt.Errorf("invalid STORAGE: %q (must be sqlite|memory|off)", c.Storage)
	}
	if c.Storage == StorageSQLite && strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("STORAGE_PATH is required when STORAGE=sqlite")
	}
	if c.StorageMaxRows < 100 {
		return fmt.Errorf("STORAGE_MAX_ROWS must be >= 100")
	}

	if c.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be >= 1")
	}
	if c.RecentBuffer < 0 {
		return fmt.Errorf("RECENT_BUFFER must be >= 0")
	}

	if c.HealthCheckInterval < 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL must be >= 0 (0 disables)")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}
	if !strings.HasPrefix(c.HealthCheckPath, "/") {
		return fmt.Errorf("HEALTH_CHECK_PATH must start with /")
	}

	if c.RequestBodyMaxBytes <= 0 {
		return fmt.Errorf("REQUEST_BODY_MAX_BYTES must be > 0")
	}

	return nil
}

// Helper functions for parsing environment variables

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
