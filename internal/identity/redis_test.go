package identity

import (
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "default", time.Minute)

	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}

	rec := sampleRecord()
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mr.Exists("quizroom:identity:default") {
		t.Fatalf("expected redis key to be set")
	}
	loaded, err := store.Load()
	if err != nil || loaded != rec {
		t.Fatalf("unexpected load %+v, %v", loaded, err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if mr.Exists("quizroom:identity:default") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestRedisStoreProfilesIsolated(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	work := NewRedisStore(client, "work", 0)
	home := NewRedisStore(client, "home", 0)

	if err := work.Save(sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := home.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord for other profile, got %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "default", time.Minute)
	if err := store.Save(sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected expired record, got %v", err)
	}
}
