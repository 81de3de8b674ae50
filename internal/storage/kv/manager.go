package kv

import (
	"database/sql"
	"sync"

	backend "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Manager hands out named buckets on one configured backend.
type Manager struct {
	backend string
	factory func(name string) Bucket

	buckets map[string]Bucket
	mu      sync.Mutex
}

// NewSQLiteManager creates a manager whose buckets live in the kv_store table.
func NewSQLiteManager(db *sql.DB) *Manager {
	return newManager("sqlite", func(name string) Bucket {
		return NewSQLiteBucket(db, name)
	})
}

// NewRedisManager creates a manager whose buckets live in Redis under prefix.
func NewRedisManager(client *backend.Client, prefix string) *Manager {
	return newManager("redis", func(name string) Bucket {
		return NewRedisBucket(client, prefix, name)
	})
}

// NewMemoryManager creates a manager whose buckets vanish on restart.
func NewMemoryManager() *Manager {
	return newManager("memory", func(name string) Bucket {
		return NewMemoryBucket(name)
	})
}

func newManager(backendName string, factory func(string) Bucket) *Manager {
	return &Manager{
		backend: backendName,
		factory: factory,
		buckets: make(map[string]Bucket),
	}
}

// Backend returns the backend name ("sqlite", "redis" or "memory").
func (m *Manager) Backend() string {
	return m.backend
}

// Bucket returns a bucket by name, creating it if it doesn't exist.
func (m *Manager) Bucket(name string) Bucket {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.buckets[name]; ok {
		return bucket
	}

	bucket := m.factory(name)
	m.buckets[name] = bucket
	log.Debug().
		Str("bucket", name).
		Str("backend", m.backend).
		Bool("persistent", bucket.IsPersistent()).
		Msg("Created KV bucket")

	return bucket
}
