package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lampd/internal/config"
	"github.com/dokzlo13/lampd/internal/credentials"
	"github.com/dokzlo13/lampd/internal/db"
	"github.com/dokzlo13/lampd/internal/ledger"
	"github.com/dokzlo13/lampd/internal/storage/kv"
)

const redisPingTimeout = 3 * time.Second

// Storage groups the persistent pieces shared by `serve` and `reset`.
type Storage struct {
	DB          *db.DB
	KV          *kv.Manager
	Credentials *credentials.Store
	Ledger      *ledger.Ledger

	redis *redis.Client
}

// OpenStorage opens the database and the configured kv backend.
func OpenStorage(cfg *config.Config) (*Storage, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		DB:     database,
		Ledger: ledger.New(database.DB),
	}

	switch cfg.Storage.Backend {
	case "redis":
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err := s.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: redis %s: %w", credentials.ErrStorage, cfg.Storage.Redis.Addr, err)
		}
		s.KV = kv.NewRedisManager(s.redis, cfg.Storage.Redis.Prefix)
	case "memory":
		log.Warn().Msg("Using memory storage, credentials are lost on restart")
		s.KV = kv.NewMemoryManager()
	default:
		s.KV = kv.NewSQLiteManager(database.DB)
	}

	s.Credentials = credentials.NewStore(s.KV.Bucket(credentials.BucketName))
	log.Debug().Str("backend", s.KV.Backend()).Str("path", cfg.Database.Path).Msg("Storage opened")
	return s, nil
}

// AppBucket returns the bucket holding credentials and the device id.
func (s *Storage) AppBucket() kv.Bucket {
	return s.KV.Bucket(credentials.BucketName)
}

// Close releases the database and the Redis client.
func (s *Storage) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// ResetCredentials erases the stored credentials without starting the lamp,
// so the next boot enters provisioning.
func ResetCredentials(cfg *config.Config, source string) error {
	s, err := OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Credentials.Remove(); err != nil {
		return err
	}
	if err := s.Ledger.Append(ledger.EventCredentialsReset, map[string]any{"source": source}); err != nil {
		log.Warn().Err(err).Msg("Failed to record credentials reset")
	}
	log.Info().Str("backend", s.KV.Backend()).Msg("Credentials erased")
	return nil
}

// History is the lifecycle record printed by `lampd history`.
type History struct {
	Entries []*ledger.Entry
	Counts  map[ledger.EventType]int
}

// ReadHistory returns the newest limit entries and a total per event type.
func ReadHistory(cfg *config.Config, limit int) (*History, error) {
	s, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	h := &History{Counts: make(map[ledger.EventType]int, len(ledger.EventTypes))}
	if h.Entries, err = s.Ledger.Recent(limit); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	for _, t := range ledger.EventTypes {
		n, err := s.Ledger.CountByType(t)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		h.Counts[t] = n
	}
	return h, nil
}
