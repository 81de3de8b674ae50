package kv

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBucket is an in-memory bucket (not persisted).
// Useful for development setups where provisioning should run on every start.
type MemoryBucket struct {
	name    string
	records map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		records: make(map[string][]byte),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// IsPersistent returns false (memory buckets are not persistent).
func (b *MemoryBucket) IsPersistent() bool {
	return false
}

// Store saves value under key.
func (b *MemoryBucket) Store(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	b.mu.Lock()
	b.records[key] = data
	b.mu.Unlock()
	return nil
}

// Get decodes the value stored under key into dst.
func (b *MemoryBucket) Get(key string, dst any) (bool, error) {
	b.mu.RLock()
	data, ok := b.records[key]
	b.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.records[key]
	delete(b.records, key)
	return ok, nil
}
