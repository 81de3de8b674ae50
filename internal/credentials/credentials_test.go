package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lampd/internal/storage/kv"
)

type brokenBucket struct {
	*kv.MemoryBucket
}

var errDisk = errors.New("disk full")

func (brokenBucket) Get(string, any) (bool, error) {
	return false, errDisk
}

func (brokenBucket) Store(string, any) error {
	return errDisk
}

func (brokenBucket) Delete(string) (bool, error) {
	return false, errDisk
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(kv.NewMemoryBucket(BucketName))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(Credentials{SSID: "HomeNet", Password: "secret1"}))

	got, err = s.Get()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Credentials{SSID: "HomeNet", Password: "secret1"}, *got)

	require.NoError(t, s.Remove())
	got, err = s.Get()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Remove(), "removing twice is fine")
}

func TestStoreErrorsWrapErrStorage(t *testing.T) {
	s := NewStore(brokenBucket{kv.NewMemoryBucket(BucketName)})

	_, err := s.Get()
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errDisk)

	assert.ErrorIs(t, s.Set(Credentials{SSID: "x"}), ErrStorage)
	assert.ErrorIs(t, s.Remove(), ErrStorage)
}

func TestCredentialsStringMasksPassword(t *testing.T) {
	s := Credentials{SSID: "HomeNet", Password: "secret1"}.String()
	assert.Contains(t, s, "HomeNet")
	assert.NotContains(t, s, "secret1")
}
