package redis

import "github.com/redis/go-redis/v9"

// Option is used to override defaults when creating a new Redis store
type Option func(*Store)

// WithClient overrides the default client
func WithClient(client redis.UniversalClient) Option {
	return func(s *Store) {
		s.client = client
	}
}
