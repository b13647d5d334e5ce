/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tutoring billing server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Build the zap logger
  3. Open the SQLite store (runs migrations)
  4. Create API handler and billing scheduler
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags default to environment variables:
  -port      PORT                HTTP server port (default: 8080)
  -db        DB_PATH             SQLite database path (default: billing.db)
                                 Use ":memory:" for in-memory database
  -interval  SCHEDULER_INTERVAL  Billing recompute interval (default: 1h, 0 disables)
  -workers   ROSTER_WORKERS      Concurrent student computations (default: GOMAXPROCS)
             LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT configure the logger

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/billing.db"
  LOG_FORMAT=console ./server -db=":memory:" -interval=5m

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Billing scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/warp/tutoring-billing/api"
	"github.com/warp/tutoring-billing/pkg/logger"
	"github.com/warp/tutoring-billing/roster"
	"github.com/warp/tutoring-billing/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", getEnv("DB_PATH", "billing.db"), "SQLite database path")
	interval := flag.Duration("interval", envDuration("SCHEDULER_INTERVAL", time.Hour), "billing recompute interval, 0 disables")
	workers := flag.Int("workers", envInt("ROSTER_WORKERS", roster.DefaultWorkers()), "concurrent student computations")
	flag.Parse()

	// Logger config from env (LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT)
	loggerConfig := &logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
		Output: getEnv("LOG_OUTPUT", "stdout"),
	}
	log, err := logger.New(loggerConfig, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	store, err := sqlite.New(*dbPath, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.String("db", *dbPath), zap.Error(err))
	}
	defer store.Close()

	handler := api.NewHandler(store, log)
	handler.Service.Workers = *workers

	scheduler := handler.Scheduler
	scheduler.CheckInterval = *interval
	scheduler.Enabled = *interval > 0
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.Int("port", *port), zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
		return
	}
	log.Info("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
