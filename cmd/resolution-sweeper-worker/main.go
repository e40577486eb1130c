package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/lifecycle"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/modifiers"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/repo"
	"github.com/radieske/social-bet-resolution/internal/shared/cache"
	"github.com/radieske/social-bet-resolution/internal/shared/config"
	"github.com/radieske/social-bet-resolution/internal/shared/db"
	"github.com/radieske/social-bet-resolution/internal/shared/logger"
	"github.com/radieske/social-bet-resolution/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "resolution-sweeper-worker"
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

	store := repo.NewPostgres(pg)
	mods := modifiers.NewRedisCache(redisClient, cfg.ModifierCacheTTL, modifiers.NewPostgres(pg), log)
	engine := lifecycle.New(store, repo.NewMembership(pg), mods, log, lifecycle.Config{
		DefaultQuorum:  cfg.QuorumMinResolvers,
		ReconcileAfter: cfg.ReconcileAfter,
		SweepBatch:     cfg.SweepBatch,
		Topics: lifecycle.Topics{
			Resolved:     cfg.TopicBetResolved,
			Cancelled:    cfg.TopicBetCancelled,
			Status:       cfg.TopicBetStatus,
			ItemConsumed: cfg.TopicItemConsumed,
		},
	})

	m := metrics.NewResolution(prometheus.DefaultRegisterer)
	engine.Hooks = lifecycle.Hooks{
		OnTransition: func(from, to model.BetStatus) { m.Transitions.WithLabelValues(string(from), string(to)).Inc() },
		OnSettled: func(res model.SettlementResult) {
			m.Settlements.WithLabelValues(string(res.Policy)).Inc()
			if res.MovesCredits() {
				m.PayoutCents.Add(float64(res.PayoutTotal()))
			}
		},
		OnSettlementFailed: func() { m.SettlementFailures.Inc() },
		OnConflict:         func(op string) { m.Conflicts.WithLabelValues(op).Inc() },
	}

	passes := prometheus.NewCounter(prometheus.CounterOpts{Name: "sweeper_passes_total", Help: "passadas do sweeper"})
	swept := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sweeper_bets_total", Help: "apostas tratadas por ação"}, []string{"action"})
	prometheus.MustRegister(passes, swept)

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	defer metricsSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval), zap.Duration("reconcile_after", cfg.ReconcileAfter))
	err = engine.RunSweeper(ctx, cfg.SweepInterval, func(rep lifecycle.SweepReport) {
		passes.Inc()
		swept.WithLabelValues("closed").Add(float64(rep.Closed))
		swept.WithLabelValues("resolved").Add(float64(rep.Resolved))
		swept.WithLabelValues("reconciled").Add(float64(rep.Reconciled))
		swept.WithLabelValues("failed").Add(float64(rep.Failed))
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal("sweeper stopped with error", zap.Error(err))
	}
	log.Info("sweeper stopped")
}
