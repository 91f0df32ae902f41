package state

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStore_SaveLoadAndReset(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	if st, err := store.Load(ctx); err != nil || st != nil {
		t.Fatalf("expected no prior state, got %v %v", st, err)
	}
	if err := store.Save(ctx, sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}

	st, err := store.Load(ctx)
	if err != nil || st == nil {
		t.Fatalf("load: %v", err)
	}
	if st.TotalItems != 2 || st.Items[1].RemoteID != "SW-2" {
		t.Fatalf("unexpected state: %+v", st)
	}

	archived, err := store.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.HasPrefix(archived, "test:state:archive:") || !mr.Exists(archived) {
		t.Fatalf("expected archived key, got %q", archived)
	}
	if mr.Exists("test:state") {
		t.Fatalf("expected live state key to be gone")
	}
}

func TestRedisStore_CorruptStateMeansFreshStart(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := mr.Set("test:state", "{garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := store.Load(context.Background())
	if err != nil || st != nil {
		t.Fatalf("expected fresh start, got %v %v", st, err)
	}
}

func TestRedisStore_SlugCache(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_ = store.RecordSlug(ctx, "SW-1", "1-first")
	_ = store.RecordSlug(ctx, "SW-1", "1-second")

	cache, err := store.LoadSlugCache(ctx)
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	if slug, ok := cache.Lookup("SW-1"); !ok || slug != "1-first" {
		t.Fatalf("unexpected cache: %v", cache)
	}
}
