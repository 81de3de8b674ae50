// Package kv provides key-value buckets backed by SQLite, Redis or memory.
package kv

import "errors"

// ErrBackend wraps every failure coming from the underlying store.
var ErrBackend = errors.New("kv backend failure")

// Bucket holds small JSON records under string keys. Records never expire;
// the lamp keeps its credentials and device id until they are removed.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket survives a restart.
	IsPersistent() bool

	// Store saves value under key, replacing any previous record.
	Store(key string, value any) error

	// Get decodes the value stored under key into dst.
	// Returns false if the key doesn't exist.
	Get(key string, dst any) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)
}
