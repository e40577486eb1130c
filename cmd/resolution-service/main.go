package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpapi "github.com/radieske/social-bet-resolution/internal/resolution-service/http"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/ledger"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/lifecycle"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/modifiers"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/repo"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/ws"
	"github.com/radieske/social-bet-resolution/internal/shared/cache"
	"github.com/radieske/social-bet-resolution/internal/shared/config"
	"github.com/radieske/social-bet-resolution/internal/shared/db"
	"github.com/radieske/social-bet-resolution/internal/shared/logger"
	"github.com/radieske/social-bet-resolution/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "resolution-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	log.Info("postgres connected")

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	store := repo.NewPostgres(pg)
	auth := repo.NewMembership(pg)
	mods := modifiers.NewRedisCache(redisClient, cfg.ModifierCacheTTL, modifiers.NewPostgres(pg), log)

	engine := lifecycle.New(store, auth, mods, log, lifecycle.Config{
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

	// métricas do ciclo de resolução
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

	votes := ledger.New(store, auth, log)
	votes.OnVote = func(kind string) { m.VotesCast.WithLabelValues(kind).Inc() }

	wsSent := prometheus.NewCounter(prometheus.CounterOpts{Name: "resolution_ws_messages_sent_total", Help: "mensagens entregues a clientes websocket"})
	prometheus.MustRegister(wsSent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(originAllowed(cfg.CORSAllowedOrigins), log)
	hub.OnBroadcast = func(n int) { wsSent.Add(float64(n)) }
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := httpapi.NewServer(log, votes, engine, cache.NewBroadcaster(redisClient), cfg.RedisPubSubChannel)
	api.WS = hub.HandleWS

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("resolution-service stopped")
}

// originAllowed aplica a mesma lista do CORS ao upgrade do websocket
func originAllowed(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
