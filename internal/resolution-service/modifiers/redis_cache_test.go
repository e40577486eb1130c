package modifiers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

type countingResolver struct {
	calls int
	m     model.Modifiers
}

func (c *countingResolver) GetActiveModifiers(_ context.Context, _ string, _ time.Time) (model.Modifiers, error) {
	c.calls++
	return c.m, nil
}

func newCache(t *testing.T, next Resolver) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Minute, next, zap.NewNop())
	c.now = func() time.Time { return closeAt.Add(time.Hour) }
	return c, mr
}

func TestRedisCacheStoresPastSnapshots(t *testing.T) {
	pct, item := 50, "ins-1"
	next := &countingResolver{m: model.Modifiers{InsurancePct: &pct, InsuranceItemID: &item, Multiplier: decimal.RequireFromString("1.5")}}
	c, mr := newCache(t, next)
	ctx := context.Background()

	first, err := c.GetActiveModifiers(ctx, "u1", closeAt)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetActiveModifiers(ctx, "u1", closeAt)
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", next.calls)
	}
	if *second.InsurancePct != 50 || *second.InsuranceItemID != "ins-1" || !second.Multiplier.Equal(first.Multiplier) {
		t.Fatalf("cached = %+v", second)
	}
	if !mr.Exists(key("u1", closeAt)) {
		t.Fatalf("key %s not written", key("u1", closeAt))
	}
	if ttl := mr.TTL(key("u1", closeAt)); ttl != time.Minute {
		t.Errorf("ttl = %s, want 1m", ttl)
	}
}

func TestRedisCacheSkipsFutureInstants(t *testing.T) {
	next := &countingResolver{m: model.NoModifiers()}
	c, mr := newCache(t, next)
	future := closeAt.Add(2 * time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := c.GetActiveModifiers(context.Background(), "u1", future); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls != 2 {
		t.Fatalf("backend calls = %d, want 2", next.calls)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("future snapshot cached: %v", mr.Keys())
	}
}

func TestRedisCacheFallsBackWhenRedisIsDown(t *testing.T) {
	next := &countingResolver{m: model.NoModifiers()}
	c, mr := newCache(t, next)
	mr.Close()

	if _, err := c.GetActiveModifiers(context.Background(), "u1", closeAt); err != nil {
		t.Fatalf("err = %v, want backend result", err)
	}
	if next.calls != 1 {
		t.Fatalf("backend calls = %d", next.calls)
	}
}
