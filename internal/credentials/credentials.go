// Package credentials persists the network credentials captured during provisioning.
package credentials

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/lampd/internal/storage/kv"
)

// Key is the fixed storage key of the credentials record.
const Key = "wifi_creds"

// BucketName is the kv bucket holding application records.
const BucketName = "app"

// ErrStorage marks failures reading or writing the credentials record.
var ErrStorage = errors.New("credential storage failure")

// Credentials identify and unlock the network the lamp joins.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// String masks the password so credentials are safe to log.
func (c Credentials) String() string {
	return fmt.Sprintf("{ssid: %q, password: %s}", c.SSID, mask(c.Password))
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "*****"
}

// Store reads and writes the credentials record in a bucket.
type Store struct {
	bucket kv.Bucket
}

// NewStore creates a store over bucket.
func NewStore(bucket kv.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Get returns the saved credentials, or nil if none were saved.
func (s *Store) Get() (*Credentials, error) {
	var c Credentials
	found, err := s.bucket.Get(Key, &c)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, Key, err)
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// Set saves c under Key, replacing any previous record.
func (s *Store) Set(c Credentials) error {
	if err := s.bucket.Store(Key, c); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrStorage, Key, err)
	}
	return nil
}

// Remove erases the saved credentials. Removing a missing record is not an error.
func (s *Store) Remove() error {
	if _, err := s.bucket.Delete(Key); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, Key, err)
	}
	return nil
}
