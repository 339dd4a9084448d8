package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Go_Drop/config"
	"Go_Drop/internal/log"
	"Go_Drop/internal/media"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/worker"
)

func main() {
	config.InitConfig()
	log.Init(&log.Config{
		Level:    config.AppConfig.LogLevel,
		Filename: config.AppConfig.LogFile,
		MaxSize:  100,
		MaxAge:   7,
	})
	defer log.Sync()

	if config.AppConfig.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL is required for the thumbnail worker")
	}
	store := storage.InitStore()
	sc := config.StorageConfigInstance
	thumbnailer := media.NewThumbnailer(store, sc.ThumbSize, sc.ThumbSmallSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("thumbnail worker started")
	if err := worker.RunThumbnailWorker(ctx, thumbnailer); err != nil {
		log.Fatalf("thumbnail worker stopped: %v", err)
	}
	log.Info("thumbnail worker stopped")
}
