package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arena2036/vec-aas-uploader/config"
	"github.com/arena2036/vec-aas-uploader/internal/agent/generator"
	"github.com/arena2036/vec-aas-uploader/internal/service/workflow"
	"github.com/arena2036/vec-aas-uploader/internal/utils/validator"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/queue"
	"github.com/arena2036/vec-aas-uploader/pkg/sequencer"
	"github.com/arena2036/vec-aas-uploader/pkg/storage"
)

// Components is everything a process needs to accept or execute runs.
type Components struct {
	Service *UploadService
	// Executor is nil in an API process that enqueues runs.
	Executor *Executor
	Storage  storage.Storage
	// Local is nil unless runs execute in this process.
	Local   *LocalDispatcher
	guard   *sequencer.Guard
	closers []func() error
}

// Close releases clients in reverse creation order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetExecutor wires the run executor only, for cmd/worker.
func GetExecutor(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Components, error) {
	c, err := newComponents(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := c.attachExecutor(cfg, log); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// GetService wires the API side. In local dispatch mode runs execute on
// goroutines bound to ctx; in queue mode they are enqueued for cmd/worker and
// this process never builds an executor.
func GetService(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Components, error) {
	c, err := newComponents(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var dispatcher Dispatcher
	switch cfg.Dispatch.Mode {
	case config.DispatchQueue:
		q := queue.NewAsynqQueue(queue.QueueConfig{
			RedisOpt:       cfg.Redis.AsynqOpt(),
			ProcessTimeout: cfg.Dispatch.Timeout,
			Retention:      cfg.Sequencer.SessionTTL,
		})
		c.closers = append(c.closers, q.Close)
		dispatcher = NewQueueDispatcher(q)
	default:
		if err := c.attachExecutor(cfg, log); err != nil {
			c.Close()
			return nil, err
		}
		c.Local = NewLocalDispatcher(ctx, c.Executor, cfg.Dispatch.Concurrency, log)
		dispatcher = c.Local
	}

	v := validator.NewFileValidator(log.Named("validator"), validator.DefaultConfig())
	c.Service = NewService(v, c.guard, c.Storage, dispatcher, log)

	return c, nil
}

// newComponents builds what both sides share: storage and the sequencer.
func newComponents(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Components, error) {
	c := &Components{}

	// 初始化存储
	store, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	seqStore, err := newSequencerStore(ctx, cfg, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.guard = sequencer.NewGuard(seqStore, log)
	return c, nil
}

func (c *Components) attachExecutor(cfg *config.AppConfig, log logger.Logger) error {
	client, err := generator.NewHTTPClient(generator.Config{
		BaseURL: cfg.Generator.BaseURL,
		APIKey:  cfg.Generator.APIKey,
		Timeout: cfg.Generator.Timeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize generator client: %w", err)
	}
	c.closers = append(c.closers, client.Close)

	orchestrator := workflow.NewOrchestrator(client, workflow.Config{
		BlueprintIDs: workflow.ParseBlueprintIDs(cfg.Generator.BlueprintIDs, log),
		Language:     cfg.Generator.Language,
		ViewerPath:   cfg.Generator.ViewerPath,
	}, log)

	c.Executor = NewExecutor(orchestrator, c.guard, c.Storage, ExecutorConfig{
		MaxFileSize: validator.DefaultMaxFileSize,
		Timeout:     cfg.Dispatch.Timeout,
	}, log)
	return nil
}

func newSequencerStore(ctx context.Context, cfg *config.AppConfig, c *Components) (sequencer.Store, error) {
	if cfg.Sequencer.Backend != config.SequencerRedis {
		return sequencer.NewMemoryStore(cfg.Sequencer.SessionTTL), nil
	}

	rdb := redis.NewClient(cfg.Redis.Options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.closers = append(c.closers, rdb.Close)
	return sequencer.NewRedisStore(rdb, cfg.Sequencer.SessionTTL), nil
}
