package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/api"
	"github.com/qs3c/lease_go_server/internal/api/handler"
	"github.com/qs3c/lease_go_server/internal/app"
	"github.com/qs3c/lease_go_server/internal/database"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/logger"
	"github.com/qs3c/lease_go_server/internal/pkg/pubsub"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/pkg/ws"
	"github.com/qs3c/lease_go_server/internal/repository"
	"github.com/qs3c/lease_go_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to connect database", zap.Error(err))
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zl.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	zl.Info("redis connected")

	store, err := blob.New(ctx, cfg.Storage, zl)
	if err != nil {
		zl.Fatal("failed to init blob store", zap.Error(err))
	}

	pipeline, err := app.NewPipeline(ctx, cfg, rdb, zl)
	if err != nil {
		zl.Fatal("failed to init analysis pipeline", zap.Error(err))
	}

	// 初始化 Service
	jobRepo := repository.NewJobRepository(db)
	machine := jobs.NewMachine(jobRepo, cfg.Jobs.MaxRetries, zl)
	jobQueue := queue.NewQueue(rdb, cfg.Queue.JobQueue)
	jobService := service.NewJobService(jobRepo, machine, store, jobQueue, cfg, zl)
	analysisService := service.NewAnalysisService(pipeline.Analyzer, pipeline.Router, pipeline.Extractor, jobService, cfg, zl)

	// WebSocket Hub，转发 worker 发布的进度
	wsHub := ws.NewHub(zl)
	go func() {
		err := handler.RelayProgress(ctx, pubsub.NewSubscriber(rdb), wsHub, zl)
		if err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("progress relay stopped", zap.Error(err))
		}
	}()

	// 初始化 Router
	router := api.NewRouter(
		handler.NewAnalysisHandler(analysisService, cfg.Server.MaxUploadBytes),
		handler.NewJobHandler(jobService, cfg.Server.MaxUploadBytes),
		handler.NewWebSocketHandler(wsHub, cfg.CORS.AllowedOrigins, zl),
		handler.NewHealthHandler(db, rdb),
		cfg,
		zl,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
}
