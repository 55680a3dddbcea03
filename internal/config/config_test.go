package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/yourselfhosted/slash-sub001/internal/resolver"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SLASH_CDP_ADDRESS", "SLASH_CDP_PORT", "SLASH_NAV_TIMEOUT_MS",
		"SLASH_LAUNCH_BROWSER", "SLASH_BROWSER_PATH", "SLASH_BROWSER_PROFILE_DIR", "SLASH_BROWSER_HEADLESS",
		"SLASH_DB_PATH", "SLASH_INSTANCE_URL", "SLASH_PROVIDERS_FILE", "SLASH_EMPTY_NAME",
		"SLASH_AUDIT_DIR", "SLASH_AUDIT_BUFFER_SIZE", "SLASH_AUDIT_MAX_FILE_SIZE_MB",
		"SLASH_BIND_ADDR", "SLASH_PORT_CANDIDATES", "SLASH_PORT_AUTO_FALLBACK",
		"SLASH_NOTIFY_URL", "SLASH_NOTIFY_OUTCOMES",
		"SLASH_LOG_LEVEL", "SLASH_LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPURL() != "http://127.0.0.1:9222" {
		t.Fatalf("CDPURL() = %q", cfg.CDPURL())
	}
	if cfg.DBPath != "./data/slash.db" || cfg.BindAddr != "127.0.0.1:8288" {
		t.Fatalf("DBPath/BindAddr = %q/%q", cfg.DBPath, cfg.BindAddr)
	}
	if cfg.EmptyNamePolicy != resolver.EmptyNameIgnore {
		t.Fatalf("EmptyNamePolicy = %q; want ignore", cfg.EmptyNamePolicy)
	}
	if cfg.NavTimeout() != 5*time.Second {
		t.Fatalf("NavTimeout() = %v", cfg.NavTimeout())
	}
	want := []string{"127.0.0.1:8289", "127.0.0.1:8290", "127.0.0.1:8291"}
	if !reflect.DeepEqual(cfg.PortCandidates, want) {
		t.Fatalf("PortCandidates = %v, want %v", cfg.PortCandidates, want)
	}
	if cfg.NotifyURL != "" || cfg.NotifyOutcomes != "navigation_failed,config_unavailable" {
		t.Fatalf("NotifyURL/NotifyOutcomes = %q/%q", cfg.NotifyURL, cfg.NotifyOutcomes)
	}
	if !cfg.PortAutoFallback || cfg.LaunchBrowser {
		t.Fatalf("PortAutoFallback/LaunchBrowser = %v/%v", cfg.PortAutoFallback, cfg.LaunchBrowser)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLASH_CDP_PORT", "9333")
	t.Setenv("SLASH_NAV_TIMEOUT_MS", "10")
	t.Setenv("SLASH_EMPTY_NAME", "redirect")
	t.Setenv("SLASH_INSTANCE_URL", "  https://my.instance.example  ")
	t.Setenv("SLASH_LOG_LEVEL", "DEBUG")
	t.Setenv("SLASH_LAUNCH_BROWSER", "true")
	t.Setenv("SLASH_PORT_CANDIDATES", "9001, 0.0.0.0:9002")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CDPPort != 9333 {
		t.Fatalf("CDPPort = %d", cfg.CDPPort)
	}
	if cfg.NavTimeoutMS != 500 {
		t.Fatalf("NavTimeoutMS = %d; want clamped to 500", cfg.NavTimeoutMS)
	}
	if cfg.EmptyNamePolicy != resolver.EmptyNameRedirect {
		t.Fatalf("EmptyNamePolicy = %q", cfg.EmptyNamePolicy)
	}
	if cfg.InstanceURL != "https://my.instance.example" {
		t.Fatalf("InstanceURL = %q", cfg.InstanceURL)
	}
	if cfg.LogLevel != "debug" || !cfg.LaunchBrowser {
		t.Fatalf("LogLevel/LaunchBrowser = %q/%v", cfg.LogLevel, cfg.LaunchBrowser)
	}
	want := []string{"127.0.0.1:9001", "0.0.0.0:9002"}
	if !reflect.DeepEqual(cfg.PortCandidates, want) {
		t.Fatalf("PortCandidates = %v, want %v", cfg.PortCandidates, want)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLASH_EMPTY_NAME", "sometimes")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() = nil error; want invalid empty-name policy")
	}

	clearEnv(t)
	t.Setenv("SLASH_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() = nil error; want port range error")
	}
}
