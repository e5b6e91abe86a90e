package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"

	"github.com/denecity/taas/internal/api"
	"github.com/denecity/taas/internal/eventbus"
	"github.com/denecity/taas/internal/gateway"
	"github.com/denecity/taas/internal/routine"
	"github.com/denecity/taas/internal/scheduler"
	"github.com/denecity/taas/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr string
	dbDSN    string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "taas-server",
		Short: "taas server — turtle fleet orchestrator",
		Long: `taas server accepts WebSocket connections from ComputerCraft turtles,
exposes a REST API for starting and monitoring routines, and streams live
lifecycle events to connected dashboards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("TAAS_HTTP_ADDR", ":8080"), "HTTP API and turtle gateway listen address")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("TAAS_DB_DSN", "./taas.db"), "SQLite database file path")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("TAAS_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taas-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	bus := eventbus.New(zap.NewNop())

	logger, err := buildLogger(cfg.logLevel, bus)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting taas server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("log_level", cfg.logLevel),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. State Store ---
	gormDB, err := store.Open(store.Config{
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	st := store.New(gormDB, logger)

	// --- 2. Gateway ---
	gw := gateway.New(logger)

	// --- 3. Routine Registry ---
	registry := routine.NewRegistry()

	// --- 4. Scheduler ---
	sched, err := scheduler.New(registry, gw, st, bus, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 5. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Store:     st,
		Scheduler: sched,
		Registry:  registry,
		Bus:       bus,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.HandleFunc("/ws", gw.ServeHTTP)

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down taas server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("taas server stopped")
	return nil
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

// buildLogger constructs the base zap logger and wraps its core with
// eventbus.LogCore so every log record is also republished as a bus event
// the dashboard's /events feed can display.
func buildLogger(level string, bus *eventbus.Bus) (*zap.Logger, error) {
	var zcfg zap.Config

	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	base, err := zcfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return eventbus.NewLogCore(core, bus)
	}))
	if err != nil {
		return nil, err
	}
	return base, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
