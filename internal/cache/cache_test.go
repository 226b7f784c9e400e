package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	c := NewRedis(rdb, "pawmap:")

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := c.Get(ctx, "place:html:1")
		if err != nil || ok {
			t.Errorf("expected clean miss, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Hit With Prefix", func(t *testing.T) {
		if err := c.Set(ctx, "place:html:1", "<html></html>", time.Hour); err != nil {
			t.Fatal(err)
		}
		v, ok, err := c.Get(ctx, "place:html:1")
		if err != nil || !ok || v != "<html></html>" {
			t.Errorf("unexpected get: %q %v %v", v, ok, err)
		}
		if !mr.Exists("pawmap:place:html:1") {
			t.Error("expected key to be stored under prefix")
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		_ = c.Set(ctx, "robots:example.com", "", time.Minute)
		mr.FastForward(2 * time.Minute)
		if _, ok, _ := c.Get(ctx, "robots:example.com"); ok {
			t.Error("expected expired key to miss")
		}
	})

	t.Run("Server Down", func(t *testing.T) {
		mr.Close()
		if _, _, err := c.Get(ctx, "anything"); err == nil {
			t.Error("expected error when redis is unreachable")
		}
	})
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "a", "1", time.Minute)
	_ = m.Set(ctx, "b", "2", 0)

	if v, ok, _ := m.Get(ctx, "a"); !ok || v != "1" {
		t.Errorf("expected hit for a, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("expected a to expire")
	}
	if _, ok, _ := m.Get(ctx, "b"); !ok {
		t.Error("entries without ttl should not expire")
	}
}
