package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"intel-registry/internal/api"
	"intel-registry/internal/chainclock"
	"intel-registry/internal/config"
	"intel-registry/internal/events"
	"intel-registry/internal/observability/alerting"
	"intel-registry/internal/observability/metrics"
	"intel-registry/internal/registry"
	"intel-registry/internal/storage"
	"intel-registry/internal/storage/badger"
	"intel-registry/internal/storage/mysql"
	"intel-registry/internal/storage/redis"
	"intel-registry/pkg/logger"
)

// main 是登记簿守护进程的入口。
func main() {
	configPath := flag.String("config", os.Getenv("INTELREG_CONFIG"), "配置文件路径（YAML 或 JSON）")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("inteld 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("inteld")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("关闭存储失败", slog.String("error", err.Error()))
		}
	}()

	clock, closeClock, err := chainclock.Open(ctx, cfg.Clock)
	if err != nil {
		return err
	}
	defer closeClock()

	queue, err := events.Open(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Warn("关闭事件队列失败", slog.String("error", err.Error()))
		}
	}()

	recorder := metrics.New()
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}

	reg, err := registry.New(ctx, store, registry.Options{
		Owner:   cfg.Registry.Owner,
		Clock:   clock,
		Events:  queue,
		Metrics: recorder,
		Alerts:  alerting.NewFanout(notifiers...),
	})
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Address != "" {
		group.Go(func() error {
			return ignoreCanceled(recorder.StartServer(gctx, cfg.Metrics.Address))
		})
	}

	// 内存队列没有外部消费者，由守护进程自行记录事件，避免队列写满。
	if mq, ok := queue.(*events.MemoryQueue); ok {
		group.Go(func() error {
			return ignoreCanceled(mq.Consume(gctx, 1, func(_ context.Context, evt events.Event) error {
				log.Debug("registry_event",
					slog.String("type", string(evt.Type)),
					slog.String("proof_id", evt.ProofID),
					slog.String("status", evt.Status),
				)
				return nil
			}))
		})
	}

	log.Info("inteld 启动",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("clock", cfg.Clock.Driver),
		slog.String("events", cfg.Events.Driver),
		slog.String("owner", reg.Owner()),
	)

	server := api.NewServer(reg, api.Options{
		Address:         cfg.Server.Address,
		IdentityHeader:  cfg.Identity.Header,
		Metrics:         recorder,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
	})
	group.Go(func() error {
		return ignoreCanceled(server.Start(gctx))
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("inteld 已退出")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return storage.NewMemoryStore(), nil
	case "badger":
		return badger.Open(badger.Config{
			Path:           cfg.Badger.Path,
			InMemory:       cfg.Badger.InMemory,
			SyncWrites:     cfg.Badger.SyncWrites,
			GCInterval:     cfg.Badger.GCInterval,
			GCDiscardRatio: 0.5,
			Logger:         logger.Named("badger"),
		})
	case "mysql":
		return mysql.Open(ctx, cfg.MySQL)
	case "redis":
		return redis.Open(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}
