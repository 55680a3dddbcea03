package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourselfhosted/slash-sub001/internal/netutil"
	"github.com/yourselfhosted/slash-sub001/internal/resolver"
)

// Config holds all configuration for slashd.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	NavTimeoutMS int

	// Optional browser launch
	LaunchBrowser     bool
	BrowserPath       string
	BrowserProfileDir string
	BrowserHeadless   bool

	// Settings store
	DBPath      string
	InstanceURL string

	// Resolution behavior
	ProvidersFile   string
	EmptyNamePolicy resolver.EmptyNamePolicy

	// Audit log
	AuditDir        string
	AuditBufferSize int
	AuditMaxSizeMB  int

	// Outcome notifications; disabled when NotifyURL is empty
	NotifyURL      string
	NotifyOutcomes string

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	policy, err := resolver.ParseEmptyNamePolicy(os.Getenv("SLASH_EMPTY_NAME"))
	if err != nil {
		return nil, fmt.Errorf("SLASH_EMPTY_NAME: %w", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("SLASH_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("SLASH_CDP_PORT", 9222),
		NavTimeoutMS:      getEnvIntOrDefault("SLASH_NAV_TIMEOUT_MS", 5000),
		LaunchBrowser:     getEnvBoolOrDefault("SLASH_LAUNCH_BROWSER", false),
		BrowserPath:       os.Getenv("SLASH_BROWSER_PATH"),
		BrowserProfileDir: getEnvOrDefault("SLASH_BROWSER_PROFILE_DIR", "./data/browser-profile"),
		BrowserHeadless:   getEnvBoolOrDefault("SLASH_BROWSER_HEADLESS", false),
		DBPath:            getEnvOrDefault("SLASH_DB_PATH", "./data/slash.db"),
		InstanceURL:       strings.TrimSpace(os.Getenv("SLASH_INSTANCE_URL")),
		ProvidersFile:     os.Getenv("SLASH_PROVIDERS_FILE"),
		EmptyNamePolicy:   policy,
		AuditDir:          getEnvOrDefault("SLASH_AUDIT_DIR", "./data/audit"),
		AuditBufferSize:   getEnvIntOrDefault("SLASH_AUDIT_BUFFER_SIZE", 1000),
		AuditMaxSizeMB:    getEnvIntOrDefault("SLASH_AUDIT_MAX_FILE_SIZE_MB", 50),
		NotifyURL:         os.Getenv("SLASH_NOTIFY_URL"),
		NotifyOutcomes:    getEnvOrDefault("SLASH_NOTIFY_OUTCOMES", "navigation_failed,config_unavailable"),
		BindAddr:          getEnvOrDefault("SLASH_BIND_ADDR", "127.0.0.1:8288"),
		PortAutoFallback:  getEnvBoolOrDefault("SLASH_PORT_AUTO_FALLBACK", true),
		LogLevel:          strings.ToLower(getEnvOrDefault("SLASH_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("SLASH_LOG_FILE", "logs/slashd.log"),
	}
	cfg.PortCandidates = netutil.ParseCandidates(getEnvOrDefault("SLASH_PORT_CANDIDATES", "8289,8290,8291"), "127.0.0.1")

	if cfg.NavTimeoutMS < 500 {
		cfg.NavTimeoutMS = 500
	}
	if cfg.AuditBufferSize < 1 {
		cfg.AuditBufferSize = 1
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("SLASH_CDP_PORT out of range: %d", cfg.CDPPort)
	}
	return cfg, nil
}

// CDPURL returns the browser's DevTools HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
