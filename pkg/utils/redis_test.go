package utils

import (
	"context"
	"testing"
	"time"
)

func TestVersionedScriptsCompile(t *testing.T) {
	if setIfNotOlderScript == nil || deleteAndRaiseFloorScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestRedisHelpersRejectNilClient(t *testing.T) {
	ctx := context.Background()
	if _, err := SetIfNotOlder(ctx, nil, "k", "f", 1, []byte("x"), time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := DeleteAndRaiseFloor(ctx, nil, "k", "f", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := OpenRedis(ctx, RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize != 20 || c.PingTimeout != 2*time.Second || c.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
