package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

type summary struct {
	VIP bool `json:"vip"`
}

func TestEntitlementCache_NilClientAlwaysMisses(t *testing.T) {
	c := NewEntitlementCache(nil, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Set(ctx, 1, summary{VIP: true}, nil)
	var got summary
	if err := c.Get(ctx, 1, &got); !errors.Is(err, ErrMiss) {
		t.Errorf("Get = %v, want ErrMiss", err)
	}
	uid := uint(1)
	c.OrderSettled(ctx, &models.Order{UserID: &uid})

	var none *EntitlementCache
	if err := none.Get(ctx, 1, &got); !errors.Is(err, ErrMiss) {
		t.Errorf("nil cache Get = %v", err)
	}
}

func TestEntitlementCache_UnreachableServerMisses(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewEntitlementCache(rdb, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Set(ctx, 1, summary{VIP: true}, nil)
	var got summary
	if err := c.Get(ctx, 1, &got); !errors.Is(err, ErrMiss) {
		t.Errorf("Get = %v, want ErrMiss", err)
	}
	c.Invalidate(ctx, 1)
}

func TestKey(t *testing.T) {
	if got := key(42); got != "entitlements:42" {
		t.Errorf("key = %q", got)
	}
}

// ttlRecorder is a redis.Cmdable that only answers Set.
type ttlRecorder struct {
	redis.Cmdable
	sets []time.Duration
}

func (r *ttlRecorder) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	r.sets = append(r.sets, expiration)
	return redis.NewStatusResult("OK", nil)
}

func TestEntitlementCache_TTLStopsAtVIPExpiry(t *testing.T) {
	rec := &ttlRecorder{}
	c := NewEntitlementCache(rec, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	soon := time.Now().Add(10 * time.Minute)
	later := time.Now().Add(48 * time.Hour)
	past := time.Now().Add(-time.Second)

	c.Set(ctx, 1, summary{VIP: true}, &soon)
	c.Set(ctx, 1, summary{VIP: true}, &later)
	c.Set(ctx, 1, summary{VIP: false}, nil)
	c.Set(ctx, 1, summary{VIP: true}, &past)

	if len(rec.sets) != 3 {
		t.Fatalf("stored %d entries, want 3 (expired summary skipped)", len(rec.sets))
	}
	if got := rec.sets[0]; got > 10*time.Minute || got < 9*time.Minute {
		t.Errorf("ttl before expiry = %s, want about 10m", got)
	}
	if rec.sets[1] != time.Hour || rec.sets[2] != time.Hour {
		t.Errorf("uncapped ttls = %v, want 1h", rec.sets[1:])
	}
}

func TestEntryTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { ts := now.Add(d); return &ts }
	tests := []struct {
		notAfter *time.Time
		want     time.Duration
	}{
		{nil, time.Hour},
		{at(2 * time.Hour), time.Hour},
		{at(5 * time.Minute), 5 * time.Minute},
		{at(-time.Minute), -time.Minute},
	}
	for _, tt := range tests {
		if got := entryTTL(time.Hour, tt.notAfter, now); got != tt.want {
			t.Errorf("entryTTL(%v) = %s, want %s", tt.notAfter, got, tt.want)
		}
	}
}
