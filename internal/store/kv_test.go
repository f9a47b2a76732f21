package store

import (
	"context"
	"path/filepath"
	"testing"
)

type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

func TestKVImplementations(t *testing.T) {
	fileKV, err := NewFileKV(filepath.Join(t.TempDir(), "core"))
	if err != nil {
		t.Fatalf("NewFileKV failed: %v", err)
	}
	sqliteKV, err := NewSQLiteKV(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV failed: %v", err)
	}
	t.Cleanup(func() { _ = sqliteKV.Close() })

	for name, kv := range map[string]kvStore{"file": fileKV, "sqlite": sqliteKV} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := kv.Get(ctx, "carolina_olive_core"); err != nil || ok {
				t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := kv.Put(ctx, "carolina_olive_core", []byte(`{"a":1}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := kv.Put(ctx, "carolina_olive_core", []byte(`{"a":2}`)); err != nil {
				t.Fatalf("Put overwrite failed: %v", err)
			}

			got, ok, err := kv.Get(ctx, "carolina_olive_core")
			if err != nil || !ok {
				t.Fatalf("Get failed: ok=%v err=%v", ok, err)
			}
			if string(got) != `{"a":2}` {
				t.Errorf("Expected overwritten value, got %s", got)
			}

			if err := kv.Delete(ctx, "carolina_olive_core"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if err := kv.Delete(ctx, "carolina_olive_core"); err != nil {
				t.Errorf("Expected deleting a missing key to succeed, got %v", err)
			}
			if _, ok, _ := kv.Get(ctx, "carolina_olive_core"); ok {
				t.Error("Expected key to be gone after Delete")
			}
		})
	}
}

func TestFileKVRejectsPathKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileKV failed: %v", err)
	}
	if err := kv.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Error("Expected error for key with path separators")
	}
}
