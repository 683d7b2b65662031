package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"qr-attendance-bot/migrations"
)

// SQLiteKVStore implements KVStore on a local sqlite file
type SQLiteKVStore struct {
	db *dbx.DB
}

// OpenSQLiteKVStore opens (or creates) the store file and applies pending migrations
func OpenSQLiteKVStore(path string) (*SQLiteKVStore, error) {
	db, err := dbx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	log.Printf("🗄️  Local store ready at %s", path)
	return &SQLiteKVStore{db: db}, nil
}

// DB exposes the handle for the migrate script
func (s *SQLiteKVStore) DB() *dbx.DB {
	return s.db
}

func (s *SQLiteKVStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteKVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.NewQuery("SELECT value FROM kv WHERE key = {:key}").
		WithContext(ctx).
		Bind(dbx.Params{"key": key}).
		Row(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteKVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.NewQuery(`INSERT INTO kv (key, value, updated_at) VALUES ({:key}, {:value}, {:now})
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`).
		WithContext(ctx).
		Bind(dbx.Params{"key": key, "value": value, "now": time.Now().Unix()}).
		Execute()
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	_, err := s.db.Delete("kv", dbx.In("key", values...)).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}
