package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps recovery records in Redis, keyed per profile. Useful when
// many simulated participants run across processes and need durable
// identities without a filesystem each.
type RedisStore struct {
	client  *redis.Client
	profile string
	ttl     time.Duration
}

// NewRedisStore creates a store for one profile. A zero ttl means records
// never expire.
func NewRedisStore(client *redis.Client, profile string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, profile: profile, ttl: ttl}
}

func (s *RedisStore) key() string {
	return "quizroom:identity:" + s.profile
}

func (s *RedisStore) Load() (Record, error) {
	data, err := s.client.Get(context.Background(), s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNoRecord
	}
	if err != nil {
		return Record{}, fmt.Errorf("load identity: %w", err)
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

func (s *RedisStore) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.client.Set(context.Background(), s.key(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear() error {
	if err := s.client.Del(context.Background(), s.key()).Err(); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}
