package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Go_Drop/config"
	"Go_Drop/internal/handler"
	"Go_Drop/internal/log"
	"Go_Drop/internal/media"
	"Go_Drop/internal/mq"
	"Go_Drop/internal/realtime"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/storage/chunkstore"
	"Go_Drop/internal/task"
	"Go_Drop/router"
	"Go_Drop/utils"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	log.Init(&log.Config{
		Level:      config.AppConfig.LogLevel,
		Filename:   config.AppConfig.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     7,
	})
	defer log.Sync()
	if config.AppConfig.InsecureJWTSecret() {
		log.Warnw("JWT_SECRET is not set, tokens are signed with the development default")
	}

	sc := config.StorageConfigInstance
	db := repo.InitDB()
	rdb := repo.InitRedis()
	store := storage.InitStore()
	chunks, err := chunkstore.New(sc.ChunkDir)
	if err != nil {
		log.Fatalf("init chunk dir fail: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := utils.NewCache(rdb)
	hub := realtime.NewHub(realtime.NewPresence(rdb))
	if rdb != nil {
		relay := realtime.AttachRedisRelay(hub, rdb)
		go relay.Run(ctx)
	}

	var (
		thumbs service.ThumbnailDispatcher
		local  *media.LocalDispatcher
	)
	if config.AppConfig.RabbitMQURL != "" {
		thumbs = task.MQDispatcher{}
		log.Info("thumbnails are rendered by the rabbitmq worker")
	} else {
		local = media.NewLocalDispatcher(
			media.NewThumbnailer(store, sc.ThumbSize, sc.ThumbSmallSize),
			config.AppConfig.ThumbWorkerConcurrency, 64,
		)
		thumbs = local
	}

	var mailer service.Mailer
	if config.AppConfig.MailEnabled() {
		mailer = utils.SendActivateMail
	}

	uploads := service.NewUploadService(service.UploadDeps{
		DB:      db,
		Chunks:  chunks,
		Store:   store,
		Locker:  repo.NewLocker(rdb),
		Cache:   cache,
		Thumbs:  thumbs,
		Events:  hub,
		Storage: *sc,
	})
	files := service.NewFileService(db, store, cache, hub)
	users := service.NewUserService(db, cache, mailer, config.AppConfig.AppBaseURL)
	messages := service.NewMessageService(db, hub)

	engine := router.InitRouter(router.Handlers{
		Auth:     handler.NewAuthHandler(users),
		Uploads:  handler.NewUploadHandler(uploads),
		Files:    handler.NewFileHandler(files),
		Messages: handler.NewMessageHandler(messages),
		Realtime: handler.NewRealtimeHandler(hub),
	})

	srv := &http.Server{
		Addr:              config.AppConfig.AppAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	hub.Close()
	uploads.Wait()
	if local != nil {
		local.Close()
	}
	mq.ClosePublisher()
	if rdb != nil {
		_ = rdb.Close()
	}
}
