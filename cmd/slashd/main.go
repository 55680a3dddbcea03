package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yourselfhosted/slash-sub001/internal/api"
	"github.com/yourselfhosted/slash-sub001/internal/browser"
	"github.com/yourselfhosted/slash-sub001/internal/cdpnav"
	"github.com/yourselfhosted/slash-sub001/internal/config"
	"github.com/yourselfhosted/slash-sub001/internal/controller"
	"github.com/yourselfhosted/slash-sub001/internal/kvstore"
	"github.com/yourselfhosted/slash-sub001/internal/netutil"
	"github.com/yourselfhosted/slash-sub001/internal/notify"
	"github.com/yourselfhosted/slash-sub001/internal/relay"
	"github.com/yourselfhosted/slash-sub001/internal/resolver"
	"github.com/yourselfhosted/slash-sub001/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("slashd config loaded",
		"cdp_url", cfg.CDPURL(),
		"db_path", cfg.DBPath,
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"empty_name", cfg.EmptyNamePolicy,
		"nav_timeout_ms", cfg.NavTimeoutMS,
		"providers_file", cfg.ProvidersFile,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	if err := run(cfg); err != nil {
		slog.Error("slashd failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	providers := resolver.DefaultProviders()
	if cfg.ProvidersFile != "" {
		if providers, err = resolver.LoadProviders(cfg.ProvidersFile); err != nil {
			return err
		}
		slog.Info("search providers loaded", "file", cfg.ProvidersFile, "count", len(providers))
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ExecPath:   cfg.BrowserPath,
			ProfileDir: cfg.BrowserProfileDir,
			Headless:   cfg.BrowserHeadless,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	audit := storage.NewAuditLog(cfg.AuditDir, cfg.AuditBufferSize, cfg.AuditMaxSizeMB)
	defer func() {
		if err := audit.Close(); err != nil {
			slog.Warn("audit log close failed", "error", err)
		}
	}()
	broker := relay.NewBroker()
	defer broker.Close()

	var notifier *notify.Notifier
	if cfg.NotifyURL != "" {
		notifier = notify.New(&http.Client{Timeout: 10 * time.Second}, cfg.NotifyURL, notify.ParseOutcomes(cfg.NotifyOutcomes))
		defer notifier.Wait()
	}

	client := cdpnav.NewClient(cfg.CDPURL(), cfg.NavTimeout())

	// svc is assigned before client.Start, so no event reaches the observer
	// while it is nil.
	var svc *controller.Service
	r := resolver.New(store, client,
		resolver.WithProviders(providers),
		resolver.WithEmptyNamePolicy(cfg.EmptyNamePolicy),
		resolver.WithObserver(func(res resolver.Resolution) {
			svc.Record(res)
			notifier.Observe(res)
		}),
	)
	svc = controller.NewService(r, store, client, audit, broker)

	if err := client.Start(ctx, r, r.URLPatterns()); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: api.NewServer(svc, broker), ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("slashd listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case <-client.Done():
		slog.Error("browser connection lost")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// SSE streams only end when their subscription closes.
	broker.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (kvstore.Store, func(), error) {
	var (
		store   kvstore.Store
		closeFn = func() {}
	)
	if cfg.DBPath == ":memory:" {
		store = kvstore.NewMemory()
	} else {
		db, err := kvstore.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		store = db
		closeFn = func() {
			if err := db.Close(); err != nil {
				slog.Warn("settings store close failed", "error", err)
			}
		}
	}

	if cfg.InstanceURL != "" {
		if err := seedInstance(ctx, store, cfg.InstanceURL); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	return store, closeFn, nil
}

// seedInstance stores instanceURL unless an instance is already configured.
func seedInstance(ctx context.Context, store kvstore.Store, instanceURL string) error {
	if _, ok, err := store.Get(ctx, kvstore.KeyInstanceURL); err != nil {
		return err
	} else if ok {
		slog.Info("instance url already configured, seed ignored")
		return nil
	}
	value, err := controller.ValidateInstanceURL(instanceURL)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, kvstore.KeyInstanceURL, value); err != nil {
		return err
	}
	slog.Info("instance url seeded", "instance_url", value)
	return nil
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
