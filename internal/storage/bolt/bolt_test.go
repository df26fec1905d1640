package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/timetrack/internal/storage"
)

func TestStoreGetSet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	key := storage.SessionKey("github.com/acme/widgets", "2024-01-02")

	if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Set(ctx, key, []byte(`[{"start":1,"end":2}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, key, []byte(`[{"start":1,"end":3}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != `[{"start":1,"end":3}]` {
		t.Fatalf("expected last write to win, got %s", value)
	}
}

func TestStoreKeys(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, key := range []string{"b", "a", storage.PendingUploadsKey} {
		if err := store.Set(ctx, key, []byte("{}")); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d (%v)", len(keys), keys)
	}
	if keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected byte-ordered keys, got %v", keys)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "timetrack.bolt")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = store.Close() }()

	value, err := store.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("expected v, got %s", value)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "timetrack.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
