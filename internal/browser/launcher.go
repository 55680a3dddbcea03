// Package browser starts a local Chromium with remote debugging enabled and
// probes its DevTools endpoint.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
)

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	ExecPath   string
	ProfileDir string
	StartURL   string
	Headless   bool
}

// CDPURL returns the DevTools HTTP endpoint for cfg.
func (c Config) CDPURL() string {
	return "http://" + net.JoinHostPort(c.CDPAddress, strconv.Itoa(c.CDPPort))
}

// Launcher manages the lifecycle of a browser process it started itself.
type Launcher struct {
	cfg Config
	cmd *exec.Cmd
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = "./data/browser-profile"
	}
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}
	return &Launcher{cfg: cfg}
}

func detectBrowser() (string, error) {
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", candidates)
}

func isPortInUse(address string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	return append(args, l.cfg.StartURL)
}

// Launch starts the browser unless something already listens on the CDP
// port, then waits until the DevTools endpoint answers.
func (l *Launcher) Launch(ctx context.Context) error {
	if isPortInUse(l.cfg.CDPAddress, l.cfg.CDPPort) {
		slog.Info("browser already running, skipping launch",
			"address", l.cfg.CDPAddress, "port", l.cfg.CDPPort)
		return nil
	}

	browserPath := l.cfg.ExecPath
	if browserPath == "" {
		var err error
		if browserPath, err = detectBrowser(); err != nil {
			return err
		}
	}
	slog.Info("detected browser", "path", browserPath)

	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	l.cmd = exec.Command(browserPath, l.args()...)
	l.cmd.Stdout = os.Stdout
	l.cmd.Stderr = os.Stderr
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	slog.Info("browser process started", "pid", l.cmd.Process.Pid)

	if err := waitForCDP(ctx, l.cfg.CDPURL(), 15*time.Second); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	return nil
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool {
	return l.cmd != nil && l.cmd.Process != nil
}

// Stop terminates a browser started by Launch with SIGTERM, falling back to
// SIGKILL.
func (l *Launcher) Stop() {
	if !l.Running() {
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped gracefully")
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.cmd = nil
}

// Probe connects to the browser at cdpURL and returns the number of open
// page targets.
func Probe(ctx context.Context, cdpURL string) (int, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx); err != nil {
		return 0, fmt.Errorf("connect to browser: %w", err)
	}
	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return 0, fmt.Errorf("enumerate targets: %w", err)
	}
	// Run opened a tab of its own; it closes with browserCtx.
	self := chromedp.FromContext(browserCtx).Target.TargetID
	pages := 0
	for _, t := range targets {
		if t.Type == "page" && t.TargetID != self {
			pages++
		}
	}
	return pages, nil
}

func waitForCDP(ctx context.Context, cdpURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("CDP not ready at %s: %w", cdpURL, lastErr)
			}
			return ctx.Err()
		case <-ticker.C:
			probeCtx, probeCancel := context.WithTimeout(ctx, 2*time.Second)
			pages, err := Probe(probeCtx, cdpURL)
			probeCancel()
			if err != nil {
				lastErr = err
				continue
			}
			slog.Info("CDP endpoint ready", "cdp_url", cdpURL, "pages", pages)
			return nil
		}
	}
}
