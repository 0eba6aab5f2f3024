package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/app"
	"github.com/qs3c/lease_go_server/internal/database"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/cron"
	"github.com/qs3c/lease_go_server/internal/pkg/logger"
	"github.com/qs3c/lease_go_server/internal/pkg/pubsub"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/repository"
	"github.com/qs3c/lease_go_server/internal/worker"
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

	// 监听退出信号：停止领取新任务，进行中的任务最多再运行 queue.drain_timeout
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(&cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to connect database", zap.Error(err))
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zl.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := blob.New(ctx, cfg.Storage, zl)
	if err != nil {
		zl.Fatal("failed to init blob store", zap.Error(err))
	}

	pipeline, err := app.NewPipeline(ctx, cfg, rdb, zl)
	if err != nil {
		zl.Fatal("failed to init analysis pipeline", zap.Error(err))
	}

	jobRepo := repository.NewJobRepository(db)
	machine := jobs.NewMachine(jobRepo, cfg.Jobs.MaxRetries, zl)

	processor := worker.NewProcessor(
		machine,
		store,
		pipeline.Extractor,
		pipeline.Analyzer,
		pipeline.Summarizer,
		pubsub.NewPublisher(rdb),
		zl,
	)
	pool := worker.NewPool(
		queue.NewQueue(rdb, cfg.Queue.JobQueue),
		machine,
		processor,
		cfg.Queue.MaxWorkers,
		cfg.Queue.PollInterval,
		zl,
	)
	pool.SetDrainTimeout(cfg.Queue.DrainTimeout)

	// 超时任务清理
	sweeper := cron.NewService(machine, jobRepo, cfg.Jobs.StaleAfter, cfg.Jobs.CleanupInterval, zl)
	sweeper.Start()
	defer sweeper.Stop()

	if err := pool.Run(ctx); err != nil {
		zl.Error("worker pool exited", zap.Error(err))
	}
	zl.Info("worker shutdown complete")
}
