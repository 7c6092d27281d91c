package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// exerciseKV runs the contract every KV implementation must satisfy.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "accessToken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}
	if err := kv.Set(ctx, "accessToken", "tok123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "accessToken", "tok456"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := kv.Get(ctx, "accessToken")
	if err != nil || got != "tok456" {
		t.Fatalf("Get = %q, %v; want tok456", got, err)
	}
	if err := kv.Remove(ctx, "accessToken"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := kv.Remove(ctx, "accessToken"); err != nil {
		t.Fatalf("Remove absent key: %v", err)
	}
	if _, err := kv.Get(ctx, "accessToken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "nested", "budgetsync.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestSQLiteKVSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budgetsync.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	if err := kv.Set(ctx, "currentUser", `{"version":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	kv, err = NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()
	got, err := kv.Get(ctx, "currentUser")
	if err != nil || got != `{"version":1}` {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
}

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKV(client, "budgetsync:")
	defer kv.Close()

	exerciseKV(t, kv)

	if err := kv.Set(context.Background(), "accessToken", "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := mr.Get("budgetsync:accessToken"); got != "tok" {
		t.Fatalf("raw redis value = %q, want prefixed key", got)
	}
}

func TestNewRedisClient(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	client.Close()
}
