// Package identity persists the device token and last-room recovery record
// that let a participant silently reclaim their seat after a reload or
// disconnect.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNoRecord is returned when no recovery record is stored.
var ErrNoRecord = errors.New("no identity record")

// Record is what a device needs to rejoin its room: the opaque token plus
// the last-known room binding. Identity survives via Token, not Nickname.
type Record struct {
	Token    string `json:"token"`
	RoomCode string `json:"room_code"`
	RoomID   int64  `json:"room_id"`
	MemberID int64  `json:"member_id"`
	Nickname string `json:"nickname"`
}

// Store persists one recovery record per device profile.
type Store interface {
	Load() (Record, error)
	Save(Record) error
	Clear() error
}

// NewToken generates a fresh opaque device token.
func NewToken() string {
	return uuid.NewString()
}

// FileStore keeps the record in a JSON file. Writes go through a temp file
// and rename so a crash never leaves a half-written record.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath places the record under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "quizroom", "identity.json"), nil
}

func (s *FileStore) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("read identity: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode identity: %w", err)
	}
	if rec.Token == "" {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

func (s *FileStore) Save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace identity: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests and throwaway simulator
// participants.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return Record{}, ErrNoRecord
	}
	return *s.rec, nil
}

func (s *MemoryStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
