package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleRecord() Record {
	return Record{
		Token:    NewToken(),
		RoomCode: "ABC123",
		RoomID:   1,
		MemberID: 5,
		Nickname: "ada",
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizroom", "identity.json")
	store := NewFileStore(path)

	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}

	rec := sampleRecord()
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != rec {
		t.Fatalf("round trip mismatch: %+v != %+v", loaded, rec)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	store := NewFileStore(path)
	if err := store.Save(sampleRecord()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord after clear, got %v", err)
	}
	// Clearing an already-clear store is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear twice: %v", err)
	}
}

func TestFileStoreRejectsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte(`{"room_code": "ABC123"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileStore(path).Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord for tokenless record, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord, got %v", err)
	}
	rec := sampleRecord()
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil || loaded != rec {
		t.Fatalf("unexpected load %+v, %v", loaded, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("expected ErrNoRecord after clear, got %v", err)
	}
}

func TestNewTokenUnique(t *testing.T) {
	if NewToken() == NewToken() {
		t.Fatal("expected distinct tokens")
	}
}
