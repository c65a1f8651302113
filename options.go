package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is used to override defaults when creating a new Consumer
type Option func(*Consumer)

// WithStore overrides the default storage
func WithStore(store Store) Option {
	return func(c *Consumer) {
		c.store = store
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithClient overrides the default client
func WithClient(client StreamsAPI) Option {
	return func(c *Consumer) {
		c.client = client
	}
}

// WithMetricRegistry registers the consumer metrics with the registerer
func WithMetricRegistry(registerer prometheus.Registerer) Option {
	return func(c *Consumer) {
		c.registerer = registerer
	}
}

// WithReaderOptions passes options to the shard reader, e.g. WithPollBackoff
func WithReaderOptions(opts ...ReaderOption) Option {
	return func(c *Consumer) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// WithCatalogOptions passes options to the shard catalog
func WithCatalogOptions(opts ...CatalogOption) Option {
	return func(c *Consumer) {
		c.catalogOpts = append(c.catalogOpts, opts...)
	}
}

// WithShardSyncInterval overrides how often the stream is described to pick
// up new shards. A zero interval describes the stream only at start and after
// each drained shard, and Scan returns once every shard is drained.
func WithShardSyncInterval(d time.Duration) Option {
	return func(c *Consumer) {
		c.shardSyncInterval = d
	}
}

// WithMaxParallelShards caps the number of shards read at the same time.
// Zero means no limit.
func WithMaxParallelShards(n int) Option {
	return func(c *Consumer) {
		c.maxParallelShards = n
	}
}

// ShardClosedHandler is a handler that will be called when the consumer has reached the end of a closed shard.
// No more records for that shard will be provided by the consumer.
// An error can be returned to stop the consumer.
type ShardClosedHandler = func(ctx context.Context, shardID string) error

// WithShardClosedHandler sets the handler called after a closed shard has been drained
func WithShardClosedHandler(h ShardClosedHandler) Option {
	return func(c *Consumer) {
		c.shardClosedHandler = h
	}
}
