package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arena2036/vec-aas-uploader/config"
	"github.com/arena2036/vec-aas-uploader/internal/service/upload"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/worker"
)

func main() {
	cfg := config.MustLoad()

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
		logger.WithInitialFields(map[string]interface{}{"service": "worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Dispatch.Mode != config.DispatchQueue {
		log.Warn("Dispatch mode is not queue; the API executes runs itself",
			logger.String("dispatch", cfg.Dispatch.Mode))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := upload.GetExecutor(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create run executor", logger.Error(err))
		os.Exit(1)
	}
	defer components.Close()

	runWorker := worker.NewRunWorker(&worker.Config{
		RedisOpt:    cfg.Redis.AsynqOpt(),
		Concurrency: cfg.Dispatch.Concurrency,
	}, components.Executor, log)

	if err := runWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	runWorker.Stop()
	log.Info("Worker stopped")
}
