package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bakeops/bakeops/internal/engine"
	"github.com/bakeops/bakeops/internal/expressions"
	"github.com/bakeops/bakeops/internal/httpapi"
	"github.com/bakeops/bakeops/internal/logging"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/syncer"
	"github.com/bakeops/bakeops/internal/validation"
	"github.com/bakeops/bakeops/internal/workflow"
)

func main() {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("bakeops exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, celEngine)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	eng := engine.NewEngine(registry, st, workflow.NewHookRunner(celEngine), logger, nil)

	sync, err := syncer.NewSyncer(registry, st, logger, cfg.RefreshInterval(), cfg.SweepCron, nil)
	if err != nil {
		return err
	}
	if err := sync.Start(ctx); err != nil {
		return err
	}
	defer sync.Stop()

	api := httpapi.NewServer(httpapi.Deps{
		Registry: registry,
		Engine:   eng,
		Store:    st,
		Syncer:   sync,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bakeops listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return srv.Shutdown(context.Background())
}

// buildRegistry compiles the built-in definitions, merged with the
// operator overlay file when configured. An invalid overlay fails startup.
func buildRegistry(cfg Config, celEngine *expressions.CELEngine) (*workflow.Registry, error) {
	validator, err := validation.NewDefinitionValidator(celEngine)
	if err != nil {
		return nil, err
	}

	specs := workflow.DefaultSpecs()
	if err := validator.Validate(specs).ToError(); err != nil {
		return nil, err
	}

	if cfg.DefinitionsPath != "" {
		overlays, err := validator.LoadOverlayFile(cfg.DefinitionsPath)
		if err != nil {
			return nil, err
		}
		specs = append(specs, overlays...)
	}

	return workflow.NewRegistry(specs)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
