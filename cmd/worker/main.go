package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"videopipeline/internal/config"
	"videopipeline/internal/statuscache"
	"videopipeline/internal/storage"
	"videopipeline/internal/store"
	"videopipeline/internal/transcode"
	"videopipeline/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("mysql ping: %v", err)
	}

	jobStore := store.NewMySQLStore(db)
	if err := jobStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gateway, err := storage.NewMinioGateway(cfg)
	if err != nil {
		log.Fatalf("failed to initialise storage gateway: %v", err)
	}

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("create temp dir: %v", err)
	}

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String())

	w := &worker.Worker{
		ID:           workerID,
		Store:        jobStore,
		Storage:      gateway,
		Encoder:      transcode.NewFFmpeg(cfg.FFmpegPath, cfg.FFmpegPreset, cfg.AudioBitrate, cfg.EncodeTimeout),
		Cache:        statuscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger),
		Logger:       logger,
		TempDir:      cfg.TempDir,
		PollInterval: cfg.PollInterval,
	}

	logger.Info("starting worker", "worker_id", workerID, "poll_interval", cfg.PollInterval.String())
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", "error", err)
	}
	logger.Info("worker stopped")
}
