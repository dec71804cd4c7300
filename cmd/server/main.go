package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/coursebeat/coursebeat/internal/config"
	"github.com/coursebeat/coursebeat/internal/curriculum"
	"github.com/coursebeat/coursebeat/internal/handlers"
	"github.com/coursebeat/coursebeat/internal/push"
	"github.com/coursebeat/coursebeat/internal/queue"
	"github.com/coursebeat/coursebeat/internal/scheduler"
	"github.com/coursebeat/coursebeat/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DatabasePath, "error", err)
		return
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	if err := pingRedis(cfg); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		return
	}

	subscriptions := store.NewSubscriptionStore(db)
	notifications := store.NewNotificationStore(db)

	webSender := push.NewWebSender(push.VAPIDKeys{
		PublicKey:  cfg.VAPIDKeys.PublicKey,
		PrivateKey: cfg.VAPIDKeys.PrivateKey,
		Subject:    cfg.VAPIDKeys.Subject,
	}, logger)
	expoSender := push.NewExpoSender(cfg.ExpoURL, cfg.ExpoAccessToken, logger)
	dispatcher := push.NewDispatcher(webSender, expoSender, subscriptions, logger)

	delayed := queue.NewAsynq(redisOpt)
	defer delayed.Close()

	sched := scheduler.New(
		notifications,
		subscriptions,
		delayed,
		curriculum.NewLookup(db),
		dispatcher,
		logger,
	)

	worker := queue.NewWorker(redisOpt, cfg.WorkerConcurrency, logger)
	worker.HandleFunc(queue.TaskTypeFire, sched.Fire)
	if err := worker.Start(); err != nil {
		logger.Error("failed to start worker", "error", err)
		return
	}
	defer worker.Shutdown()

	h := handlers.New(cfg, sched, subscriptions, logger)
	router := setupRouter(h, logger)

	srv := &http.Server{
		Addr:     cfg.ListenAddr,
		Handler:  router,
		ErrorLog: log.New(&slogLineWriter{logger: logger, level: slog.LevelError}, "", 0),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func pingRedis(cfg *config.Config) error {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

func setupRouter(h *handlers.Handlers, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(slogGinLogger(logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/push/vapid-key", h.GetVAPIDPublicKey)

		authed := api.Group("")
		authed.Use(h.AuthMiddleware())
		{
			authed.POST("/push/subscribe", h.SubscribePush)
			authed.POST("/push/unsubscribe", h.UnsubscribePush)
			authed.POST("/push/send", h.SendImmediate)

			authed.POST("/steps/start", h.StartStep)
			authed.POST("/steps/pause", h.PauseStep)
			authed.POST("/steps/resume", h.ResumeStep)
			authed.POST("/steps/reset", h.ResetStep)
			authed.POST("/steps/toggle-pause", h.ToggleStepPause)
			authed.POST("/steps/delete-on-pause", h.DeleteStepOnPause)
		}
	}

	return router
}
