// Package main implements calmd, the long-running daemon that owns the
// metadata and vector stores and exposes the Tool Dispatcher over HTTP for
// calmctl, the hook binaries, and any other local caller (spec.md section 6).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"calmd/internal/calmerr"
	"calmd/internal/config"
	"calmd/internal/daemonrt"
	"calmd/internal/dispatch"
	"calmd/internal/health"
	"calmd/internal/logging"
	"calmd/internal/values"
)

var (
	configPath string
	verbose    bool
)

func main() {
	flag.StringVar(&configPath, "config", "", "path to config.yaml (default: {home}/config.yaml)")
	flag.BoolVar(&verbose, "verbose", false, "debug-level logging on stderr")
	flag.Parse()

	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	if err := cfg.EnsureDirs(); err != nil {
		logger.Fatal("failed to create state directories", zap.Error(err))
	}
	if err := logging.Initialize(cfg.Home); err != nil {
		logger.Warn("internal category logging did not initialize", zap.Error(err))
	}

	lockPath := filepath.Join(cfg.Home, "server.lock")
	lockFile, err := health.AcquireFlock(lockPath)
	if err != nil {
		logger.Fatal("failed to acquire single-instance lock", zap.Error(err), zap.String("lock", lockPath))
	}
	defer health.ReleaseFlock(lockFile)

	if err := writePIDFile(cfg.PIDFile()); err != nil {
		logger.Fatal("failed to write pid file", zap.Error(err))
	}
	defer os.Remove(cfg.PIDFile())

	d, cleanup, err := daemonrt.Build(cfg)
	if err != nil {
		logger.Fatal("failed to build dispatcher", zap.Error(err))
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reflector := values.NewReflectionWorker(d.Values, d.Meta, 15*time.Minute)
	reflector.Start(ctx)
	defer reflector.Stop()

	go runWorkerSweep(ctx, d, cfg, logger)
	go watchConfig(ctx, configPath, cfg, logger)

	srv := newHTTPServer(cfg, d, logger)
	go func() {
		logger.Info("calmd listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	waitForShutdown(ctx, cancel, srv, cfg, logger)
}

// loadConfig resolves the config path (flag, then {home}/config.yaml under
// the default home) and loads it, falling back to defaults on a missing file.
func loadConfig(logger *zap.Logger) (*config.Config, error) {
	path := configPath
	if path == "" {
		defaults := config.DefaultConfig()
		path = filepath.Join(defaults.Home, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded", zap.String("path", path), zap.String("home", cfg.Home))
	return cfg, nil
}

// runWorkerSweep periodically reaps stale workers past the configured
// staleness horizon, logging what it finds rather than failing the process.
func runWorkerSweep(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config, logger *zap.Logger) {
	horizon := time.Duration(cfg.CoreLimits.WorkerStaleHorizonMin) * time.Minute
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Review.SweepWorkers(horizon)
			if err != nil {
				logger.Warn("worker sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("swept stale workers", zap.Int("count", n))
			}
		}
	}
}

// watchConfig reloads cfg in place when the file named by -config changes
// (nothing is watched when the flag is absent). Code that reads cfg at use
// time, such as the per-call timeout and the shutdown wait, sees the new
// values; the gate requirement map and the other components built from cfg
// at startup are not rebuilt.
func watchConfig(ctx context.Context, path string, cfg *config.Config, logger *zap.Logger) {
	if path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch config directory", zap.String("dir", dir), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := config.Load(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", zap.Error(err))
				continue
			}
			*cfg = *reloaded
			logger.Info("config reloaded", zap.String("path", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// newHTTPServer exposes the dispatcher's /api/call RPC endpoint and /health,
// the two surfaces calmctl and the hook binaries talk to.
func newHTTPServer(cfg *config.Config, d *dispatch.Dispatcher, logger *zap.Logger) *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Call(r.Context(), "ping", nil))
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/call", func(w http.ResponseWriter, r *http.Request) {
		handleAPICall(w, r, d, cfg, logger)
	}).Methods(http.MethodPost)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
}

// apiCallRequest is the /api/call request body (spec.md section 6).
type apiCallRequest struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

func handleAPICall(w http.ResponseWriter, r *http.Request, d *dispatch.Dispatcher, cfg *config.Config, logger *zap.Logger) {
	var req apiCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": map[string]interface{}{"type": string(calmerr.KindBadRequest), "message": err.Error()},
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.CallTimeoutDuration())
	defer cancel()

	envelope := d.Call(ctx, req.Tool, req.Arguments)
	status := http.StatusOK
	if _, isErr := envelope["error"]; isErr {
		status = http.StatusBadRequest
		logger.Debug("tool call returned an error envelope", zap.String("tool", req.Tool))
	}
	writeJSON(w, status, envelope)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then gives the HTTP server
// cfg.Server.ShutdownWaitMs to drain in-flight requests before returning.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, srv *http.Server, cfg *config.Config, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownWaitMs)*time.Millisecond)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server did not shut down cleanly", zap.Error(err))
	}
	cancel()
	logger.Info("calmd stopped")
}
