package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/shadowtc/screen-record-upload-be-sub001/internal/api"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/config"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/jobs"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/objectstore"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/store"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/temp"
	"github.com/shadowtc/screen-record-upload-be-sub001/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	objects, err := objectstore.NewS3Client(ctx, cfg)
	if err != nil {
		logger.Error("failed to build object store client", "error", err)
		os.Exit(1)
	}

	spool, err := temp.NewStore(cfg.TempDir)
	if err != nil {
		logger.Error("failed to initialize temp store", "error", err)
		os.Exit(1)
	}

	svc := upload.NewService(cfg, objects, db, logger)
	manager := jobs.NewManager(cfg, objects, db, logger)
	handler := api.NewHandler(cfg, svc, manager, spool, logger)

	// Whole files arrive through the job submission endpoint, so the body
	// timeouts are sized for long transfers, not quick API calls.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Hour,
		WriteTimeout:      time.Hour,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("upload service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down upload service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	manager.Close()
}
