package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-marketplace-orders/internal/app"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/worker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.ServiceName+"-worker")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName+"-worker")
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	if cfg.StoreDriver == "memory" {
		log.Warn("worker has nothing to share with an in-memory api; the api sweeps on its own")
	}
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	sched := &orders.Scheduler{Interval: cfg.SweepInterval, LockKey: "order-progression", Log: log}
	var dedup worker.Deduper
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		sched.Locker = redisx.NewLocker(rdb)
		dedup = redisx.NewDeduper(rdb, "reconciler")
	} else {
		log.Warn("REDIS_ADDR empty: sweeping without a lock")
	}

	// Kafka producer
	var sink *kafkax.Sink
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
		prod.Start(ctx)
		sink = kafkax.NewSink(prod, cfg.ServiceName+"-worker")
	}
	svc := app.NewServices(cfg, stores, sink, log)
	sched.Sweeper = svc.Progression

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if sink != nil {
		rec := &worker.Reconciler{
			Orders:      svc.Processor,
			Retry:       sink,
			Dedup:       dedup,
			MaxAttempts: cfg.ReconcileMaxAttempts,
			Backoff:     cfg.ReconcileBackoff,
			Log:         log.Named("reconciler"),
		}
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicSubOrderFailed, cfg.WorkerConcurrency, log)
		g.Go(func() error {
			log.Info("reconcile consumer started",
				zap.String("group", cfg.WorkerGroup), zap.String("topic", orders.TopicSubOrderFailed),
				zap.Int("workers", cfg.WorkerConcurrency))
			return cons.Start(gctx, rec.HandleSubOrderFailed)
		})
	} else {
		log.Warn("KAFKA_BROKERS empty: sub-order reconciliation disabled, only sweeping")
	}

	err = g.Wait()
	log.Info("shutting down worker...")
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	return err
}
