package kv

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteBucket is a persistent bucket stored as rows of the kv_store table.
type SQLiteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteBucket creates a bucket on an open database.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{db: db, name: name}
}

// Name returns the bucket name.
func (b *SQLiteBucket) Name() string {
	return b.name
}

// IsPersistent returns true; rows survive a restart.
func (b *SQLiteBucket) IsPersistent() bool {
	return true
}

// Store upserts value under key.
func (b *SQLiteBucket) Store(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	_, err = b.db.Exec(`
		INSERT INTO kv_store (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, b.name, key, string(data), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("%w: store %s/%s: %w", ErrBackend, b.name, key, err)
	}
	return nil
}

// Get decodes the value stored under key into dst.
func (b *SQLiteBucket) Get(key string, dst any) (bool, error) {
	var raw string
	err := b.db.QueryRow(`SELECT value FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: get %s/%s: %w", ErrBackend, b.name, key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Delete removes key and reports whether a row was there.
func (b *SQLiteBucket) Delete(key string) (bool, error) {
	res, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s/%s: %w", ErrBackend, b.name, key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
