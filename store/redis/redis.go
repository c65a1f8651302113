package redis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

const localhost = "127.0.0.1:6379"

// New returns a checkpoint store that uses Redis for underlying storage
func New(appName string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, fmt.Errorf("must provide app name")
	}

	s := &Store{
		appName: appName,
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	// default client if none provided
	if s.client == nil {
		addr := os.Getenv("REDIS_URL")
		if addr == "" {
			addr = localhost
		}
		s.client = redis.NewClient(&redis.Options{Addr: addr})
	}

	// verify we can ping server
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, &consumer.StorageError{Op: "init", Key: appName, Err: err}
	}

	return s, nil
}

// Store keeps the checkpoint of each key in a Redis string
type Store struct {
	appName string
	client  redis.UniversalClient
}

// GetCheckpoint fetches the checkpoint stored for key.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

// SetCheckpoint stores a checkpoint for a shard (e.g. sequence number of last record processed by application).
// Upon failover, record processing is resumed from this point.
func (s *Store) SetCheckpoint(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// key generates a unique Redis key for storage of Checkpoint.
func (s *Store) key(key string) string {
	return fmt.Sprintf("%v:checkpoint:%v", s.appName, key)
}
