package modifiers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// Resolver é qualquer fonte de modificadores (Postgres ou outro cache)
type Resolver interface {
	GetActiveModifiers(ctx context.Context, userID string, asOf time.Time) (model.Modifiers, error)
}

// RedisCache guarda snapshots de modificadores por (usuário, instante).
// Só instantes no passado são cacheados: o snapshot não muda mais.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Next   Resolver
	Log    *zap.Logger

	now func() time.Time
}

func NewRedisCache(c *redis.Client, ttl time.Duration, next Resolver, log *zap.Logger) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl, Next: next, Log: log, now: time.Now}
}

// key gera a chave Redis do snapshot
func key(userID string, asOf time.Time) string {
	return "modifiers:" + userID + ":" + strconv.FormatInt(asOf.Unix(), 10)
}

type cached struct {
	InsurancePct     *int            `json:"insurancePct,omitempty"`
	InsuranceItemID  *string         `json:"insuranceItemId,omitempty"`
	Multiplier       decimal.Decimal `json:"multiplier"`
	MultiplierItemID *string         `json:"multiplierItemId,omitempty"`
	IsVIP            bool            `json:"isVip"`
}

func (r *RedisCache) GetActiveModifiers(ctx context.Context, userID string, asOf time.Time) (model.Modifiers, error) {
	if asOf.After(r.now()) {
		return r.Next.GetActiveModifiers(ctx, userID, asOf)
	}

	k := key(userID, asOf)
	b, err := r.Client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		var c cached
		if jerr := json.Unmarshal(b, &c); jerr == nil {
			return model.Modifiers(c), nil
		}
		r.Log.Warn("invalid modifiers cache entry", zap.String("key", k))
	case !errors.Is(err, redis.Nil):
		// cache fora não bloqueia o settlement
		r.Log.Warn("redis get failed", zap.String("key", k), zap.Error(err))
	}

	m, err := r.Next.GetActiveModifiers(ctx, userID, asOf)
	if err != nil {
		return model.Modifiers{}, err
	}
	if b, err := json.Marshal(cached(m)); err == nil {
		if err := r.Client.Set(ctx, k, b, r.TTL).Err(); err != nil {
			r.Log.Warn("redis set failed", zap.String("key", k), zap.Error(err))
		}
	}
	return m, nil
}
