package meeting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV records approval prompts and replies under meeting:<id>:request|response.
type KV interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

func requestKey(id string) string  { return fmt.Sprintf("meeting:%s:request", id) }
func responseKey(id string) string { return fmt.Sprintf("meeting:%s:response", id) }

// RedisKV stores entries in Redis with an optional expiry.
type RedisKV struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisKV(rdb redis.Cmdable, ttl time.Duration) *RedisKV {
	return &RedisKV{rdb: rdb, ttl: ttl}
}

func (k *RedisKV) Put(ctx context.Context, key, value string) error {
	if err := k.rdb.Set(ctx, key, value, k.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (k *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := k.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, true, nil
}

// LibSQLKV stores entries in the kv_entries table.
type LibSQLKV struct {
	db *sql.DB
}

func NewLibSQLKV(db *sql.DB) *LibSQLKV {
	return &LibSQLKV{db: db}
}

func (k *LibSQLKV) Put(ctx context.Context, key, value string) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (k *LibSQLKV) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := k.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, true, nil
}

// NopKV discards entries.
type NopKV struct{}

func (NopKV) Put(ctx context.Context, key, value string) error { return nil }
func (NopKV) Get(ctx context.Context, key string) (string, bool, error) { return "", false, nil }

var (
	_ KV = (*RedisKV)(nil)
	_ KV = (*LibSQLKV)(nil)
	_ KV = NopKV{}
)
