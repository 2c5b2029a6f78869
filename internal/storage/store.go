package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"smartalerts/internal/config"
)

// Named collections persisted by the alerts service.
const (
	KeyThresholds           = "alertThresholds"
	KeyAlerts               = "alerts"
	KeyNotificationSettings = "notificationSettings"
)

// KV is the durable key-value scope shared by the stores. Get returns a
// nil value and no error when the key has never been written.
type KV interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

func NewStore(cfg config.StorageConfig) (KV, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db        *sql.DB
	getQuery  string
	setQuery  string
	timestamp func(time.Time) any
}

func (b *baseStore) Get(ctx context.Context, key string) ([]byte, error) {
	if b.db == nil {
		return nil, nil
	}
	var value string
	err := b.db.QueryRowContext(ctx, b.getQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (b *baseStore) Set(ctx context.Context, key string, value []byte) error {
	if b.db == nil {
		return nil
	}
	_, err := b.db.ExecContext(ctx, b.setQuery, key, string(value), b.timestamp(nowUTC()))
	return err
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Memory is a process-local KV. Each instance is its own storage scope.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Init(context.Context) error { return nil }

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
