package rediskv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"worktrack/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniRedis(t *testing.T, namespace string) (*miniredis.Miniredis, *KV) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewWithClient(client, namespace, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKV_SetGetRemove(t *testing.T) {
	mr, kv := setupMiniRedis(t, "")
	defer mr.Close()
	ctx := context.Background()

	if err := kv.Set(ctx, "@auto_timer_state", []byte(`{"currentState":"active"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, err := kv.Get(ctx, "@auto_timer_state")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != `{"currentState":"active"}` {
		t.Errorf("unexpected value %s", v)
	}

	if err := kv.Remove(ctx, "@auto_timer_state"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := kv.Get(ctx, "@auto_timer_state"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := kv.Remove(ctx, "@auto_timer_state"); err != nil {
		t.Errorf("removing a missing key should not fail: %v", err)
	}
}

func TestKV_ListKeysByPrefix(t *testing.T) {
	mr, kv := setupMiniRedis(t, "wt:")
	defer mr.Close()
	ctx := context.Background()

	for _, k := range []string{"@auto_timer_pending_a", "@auto_timer_pending_stop_b", "@auto_timer_state"} {
		if err := kv.Set(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Set %s failed: %v", k, err)
		}
	}
	// A key outside the namespace must not be listed.
	mr.Set("@auto_timer_pending_foreign", "x")

	keys, err := kv.ListKeys(ctx, "@auto_timer_pending_")
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	sort.Strings(keys)

	want := []string{"@auto_timer_pending_a", "@auto_timer_pending_stop_b"}
	if len(keys) != len(want) {
		t.Fatalf("got keys %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	if !mr.Exists("wt:@auto_timer_state") {
		t.Error("expected namespaced key in redis")
	}
}

func TestKV_GetConnectionError(t *testing.T) {
	mr, kv := setupMiniRedis(t, "")
	mr.Close()

	if _, err := kv.Get(context.Background(), "k"); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestGlobEscape(t *testing.T) {
	if got := globEscape("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("globEscape = %s", got)
	}
}
