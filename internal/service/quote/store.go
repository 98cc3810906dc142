package quote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"motivechat/internal/redis"
	"motivechat/internal/storage"
)

// Store is a keyed day -> quote table with an atomic insert-if-absent.
type Store interface {
	// Get reports whether a quote is stored for key.
	Get(ctx context.Context, key string) (string, bool, error)
	// PutIfAbsent stores quote unless key already has one and returns the stored value.
	PutIfAbsent(ctx context.Context, key, quote string) (string, error)
}

// SQLStore keeps quotes in the daily_quotes table.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: storage.Normalize(driver)}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT quote FROM daily_quotes WHERE day_key = ?`, key).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get quote: %w", err)
	}
	return text, true, nil
}

func (s *SQLStore) PutIfAbsent(ctx context.Context, key, quote string) (string, error) {
	insert := `INSERT OR IGNORE INTO daily_quotes (day_key, quote, created_at) VALUES (?, ?, ?)`
	if s.driver == "mysql" {
		insert = `INSERT IGNORE INTO daily_quotes (day_key, quote, created_at) VALUES (?, ?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, insert, key, quote, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert quote: %w", err)
	}
	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("quote %s missing after insert", key)
	}
	return stored, nil
}

// RedisStore keeps quotes as plain keys; SETNX provides the insert-if-absent.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisTTL outlives any day key in any timezone.
const DefaultRedisTTL = 48 * time.Hour

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, prefix: "motivechat:quote:", ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := s.client.Get(ctx, s.prefix+key)
	if errors.Is(err, redis.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get quote: %w", err)
	}
	return text, true, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key, quote string) (string, error) {
	stored, err := s.client.SetNX(ctx, s.prefix+key, quote, s.ttl)
	if err != nil {
		return "", fmt.Errorf("redis setnx quote: %w", err)
	}
	if stored {
		return quote, nil
	}
	text, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("quote %s expired during insert", key)
	}
	return text, nil
}

// MemoryStore is a process-local store for tests and single-instance setups.
type MemoryStore struct {
	mu     sync.Mutex
	quotes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.quotes[key]
	return text, ok, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key, quote string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.quotes[key]; ok {
		return existing, nil
	}
	s.quotes[key] = quote
	return quote, nil
}
