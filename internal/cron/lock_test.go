package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hopl-labs/hopl-backend/pkg/redis"
)

func TestRedisLockIsExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	key := client.LockKey("cron-worker", "test")
	first, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, got %v %v", ok, err)
	}

	// a non-owner release leaves the key alone
	if err := second.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("lock released by non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists(key) {
		t.Fatal("owner release left the key behind")
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, got %v %v", ok, err)
	}
}

func TestRedisLockExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	key := client.LockKey("cron-worker", "test")

	stale, _ := NewRedisLock(client, key, time.Minute)
	if ok, err := stale.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected acquire, got %v %v", ok, err)
	}
	mr.FastForward(2 * time.Minute)

	successor, _ := NewRedisLock(client, key, time.Minute)
	if ok, err := successor.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected successor acquire, got %v %v", ok, err)
	}
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("stale holder released the successor's lock")
	}
}
