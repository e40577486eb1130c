package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/outbox-dispatcher/dispatcher"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/repo"
	"github.com/radieske/social-bet-resolution/internal/shared/cache"
	"github.com/radieske/social-bet-resolution/internal/shared/config"
	"github.com/radieske/social-bet-resolution/internal/shared/db"
	"github.com/radieske/social-bet-resolution/internal/shared/kafka"
	"github.com/radieske/social-bet-resolution/internal/shared/logger"
	"github.com/radieske/social-bet-resolution/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "outbox-dispatcher-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	log.Info("kafka writer ready", zap.String("brokers", cfg.KafkaBrokers))

	m := metrics.NewOutbox(prometheus.DefaultRegisterer)

	d := &dispatcher.Dispatcher{
		Log:         log,
		Source:      repo.NewOutbox(pg),
		Kafka:       kafka.NewPublisher(writer),
		Feed:        cache.NewBroadcaster(redisClient),
		FeedChannel: cfg.RedisPubSubChannel,
		StatusTopic: cfg.TopicBetStatus,
		DLQTopic:    cfg.TopicOutboxDLQ,
		MaxAttempts: cfg.OutboxMaxAttempts,
		Batch:       cfg.OutboxBatch,
		Interval:    cfg.OutboxPollInterval,

		OnDispatched: func(topic string) { m.Dispatched.WithLabelValues(topic).Inc() },
		OnRetry:      func(topic string) { m.Retried.WithLabelValues(topic).Inc() },
		OnDeadLetter: func(topic string) { m.DeadLetter.WithLabelValues(topic).Inc() },
		OnBroadcast:  func() { m.Broadcasts.Inc() },
		OnError:      func(stage string) { m.Errors.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	defer metricsSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("outbox dispatcher started", zap.Int("batch", cfg.OutboxBatch), zap.Int("max_attempts", cfg.OutboxMaxAttempts))
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("dispatcher stopped with error", zap.Error(err))
	}
	log.Info("outbox dispatcher stopped")
}
