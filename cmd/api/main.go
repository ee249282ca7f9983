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

	"dreampuff/internal/config"
	"dreampuff/internal/database"
	"dreampuff/internal/logger"
	"dreampuff/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// gracefulShutdown waits for SIGINT/SIGTERM, drains in-flight requests and
// releases the server's resources before signalling done.
func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan<- struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")
	close(done)
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	dbService, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db := dbService.DB()

	log.Info("Database health check", zap.Any("health", dbService.Health(ctx)))

	if err := database.RunMigrations(db, cfg.Database.MigrationsDir, log); err != nil {
		dbService.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if cfg.Server.Env == "development" {
		if err := database.GetMigrationStatus(db, cfg.Database.MigrationsDir); err != nil {
			log.Warn("Failed to print migration status", zap.Error(err))
		}
	}

	srv, err := server.NewServer(ctx, cfg, log, db)
	if err != nil {
		dbService.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.Start(ctx)

	done := make(chan struct{})
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	<-done
	return nil
}

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting Dreampuff stock API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("timezone", cfg.Session.Timezone),
	)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Graceful shutdown complete")
}
