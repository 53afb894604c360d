package cron

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/agaseke/agaseke-backend/pkg/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLockFixture(t *testing.T) (*miniredis.Miniredis, *redisclient.Client, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewFromRaw(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return mr, client, client.LockKey("cron-worker:test")
}

func TestRedisLockIsExclusiveUntilReleased(t *testing.T) {
	mr, client, key := newLockFixture(t)
	ctx := context.Background()
	lock, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	release, ok, err := lock.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := lock.TryLock(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL(key); ttl != time.Minute {
		t.Fatalf("expected lease ttl of 1m, got %s", ttl)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("lock key still present after release")
	}
	if _, ok, err := lock.TryLock(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockStaleReleaseKeepsNewOwner(t *testing.T) {
	mr, client, key := newLockFixture(t)
	ctx := context.Background()
	lock, _ := NewRedisLock(client, key, time.Minute)

	staleRelease, ok, err := lock.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := lock.TryLock(ctx); err != nil || !ok {
		t.Fatalf("acquire after expiry: ok=%v err=%v", ok, err)
	}
	if err := staleRelease(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("stale owner released the new lease")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	_, client, _ := newLockFixture(t)
	if _, err := NewRedisLock(client, " ", time.Minute); err == nil {
		t.Fatal("expected error for blank key")
	}
	lock, err := NewRedisLock(client, "k", 0)
	if err != nil || lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v err=%v", lock.ttl, err)
	}
}
