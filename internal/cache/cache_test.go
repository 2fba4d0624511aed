package cache

import (
	"context"
	"testing"
	"time"

	"github.com/vendorledger/internal/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("init disabled redis failed: %v", err)
	}
	ctx := context.Background()
	if err := SetJSON(ctx, "rules:t1", map[string]int{"n": 1}, time.Minute); err != nil {
		t.Fatalf("set should be a no-op, got %v", err)
	}
	var dest map[string]int
	hit, err := GetJSON(ctx, "rules:t1", &dest)
	if err != nil || hit {
		t.Fatalf("get should miss without redis, hit=%v err=%v", hit, err)
	}
	if err := Del(ctx, "rules:t1", "report:t1"); err != nil {
		t.Fatalf("del should be a no-op, got %v", err)
	}

	release, ok, err := TryLock(ctx, "payout_batch:t1", time.Minute)
	if err != nil || !ok || release == nil {
		t.Fatalf("lock should be granted without redis, ok=%v err=%v", ok, err)
	}
	release()
}

func TestInitRedisUnreachableDisablesCache(t *testing.T) {
	err := InitRedis(&config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1})
	if err == nil {
		t.Fatalf("expected ping error for unreachable redis")
	}
	if Enabled() {
		t.Fatalf("cache should stay disabled after failed ping")
	}
}

func TestBuildKey(t *testing.T) {
	redisPrefix = "vl"
	if got := buildKey(" lock:payout_batch:t1 "); got != "vl:lock:payout_batch:t1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := buildKey(""); got != "vl" {
		t.Fatalf("unexpected empty key: %s", got)
	}
}
