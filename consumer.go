// Package consumer reads DynamoDB Streams shard by shard and checkpoints the
// sequence number of every processed record, so a restarted consumer resumes
// where the previous one stopped.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// ScanFunc is the type of the function called for each record read from a
// shard. Returning ErrSkipCheckpoint continues the scan without storing the
// record's sequence number; any other error stops the scan.
type ScanFunc func(ctx context.Context, r Record) error

// New creates a consumer for the stream identified by streamARN. Use Option
// to override any of the optional attributes.
func New(streamARN string, opts ...Option) (*Consumer, error) {
	if streamARN == "" {
		return nil, errors.New("must provide stream arn")
	}

	// new consumer with noop storage and discard logger
	c := &Consumer{
		streamARN:         streamARN,
		store:             &noopStore{},
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		shardSyncInterval: 30 * time.Second,
	}

	// override defaults
	for _, opt := range opts {
		opt(c)
	}

	// default client
	if c.client == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		c.client = dynamodbstreams.NewFromConfig(cfg)
	}

	if c.registerer != nil {
		if err := registerMetrics(c.registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	c.catalog = NewCatalog(c.client, streamARN, c.catalogOpts...)
	readerOpts := append([]ReaderOption{withEmptyPollHook(func(shardID string) {
		counterEmptyPolls.WithLabelValues(streamARN, shardID).Inc()
	})}, c.readerOpts...)
	c.reader = NewReader(c.client, streamARN, readerOpts...)

	return c, nil
}

// Consumer wraps the interaction with the DynamoDB stream
type Consumer struct {
	streamARN          string
	client             StreamsAPI
	store              Store
	logger             *slog.Logger
	registerer         prometheus.Registerer
	catalogOpts        []CatalogOption
	readerOpts         []ReaderOption
	shardSyncInterval  time.Duration
	maxParallelShards  int
	shardClosedHandler ShardClosedHandler

	catalog *Catalog
	reader  *Reader
}

// Scan reads every shard of the stream and calls fn with each record. Shards
// are read in parallel, a child shard only after its parent has been drained.
// Scan returns the first error from any shard, or nil when ctx is cancelled.
func (c *Consumer) Scan(ctx context.Context, fn ScanFunc) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(scanCtx)

	s := &scan{
		fn:      fn,
		group:   g,
		tracker: newShardTracker(),
		donec:   make(chan string),
	}
	if c.maxParallelShards > 0 {
		s.sem = make(chan struct{}, c.maxParallelShards)
	}

	fail := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if err := c.syncShards(gctx, s); err != nil {
		return fail(err)
	}

	drain := c.shardSyncInterval <= 0
	var tick <-chan time.Time
	if !drain {
		ticker := time.NewTicker(c.shardSyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if drain && s.tracker.activeCount() == 0 {
			return c.wait(ctx, g)
		}

		select {
		case <-gctx.Done():
			return c.wait(ctx, g)
		case <-tick:
			if err := c.syncShards(gctx, s); err != nil {
				c.logger.Error("sync shards", slog.String("stream", c.streamARN), slog.String("error", err.Error()))
			}
		case shardID := <-s.donec:
			s.tracker.markCompleted(shardID)
			if !drain {
				c.startReadyShards(gctx, s)
				continue
			}
			if err := c.syncShards(gctx, s); err != nil {
				return fail(err)
			}
		}
	}
}

// ScanShard loops over records on a specific shard, calls the callback func
// for each record and checkpoints the progress of scan. It returns nil once
// the shard is closed and every record has been handled.
func (c *Consumer) ScanShard(ctx context.Context, shardID string, fn ScanFunc) error {
	lastSeqNum, _, err := c.store.GetCheckpoint(ctx, shardID)
	if err != nil {
		return err
	}

	c.logger.Info("scanning shard",
		slog.String("stream", c.streamARN),
		slog.String("shard_id", shardID),
		slog.String("sequence_number", lastSeqNum))

	var (
		consumed = counterRecordsConsumed.WithLabelValues(c.streamARN, shardID)
		written  = counterCheckpointsWritten.WithLabelValues(c.streamARN, shardID)
	)
	for r, err := range c.reader.Records(ctx, shardID, lastSeqNum) {
		if err != nil {
			return err
		}

		err = fn(ctx, r)
		if err != nil && !errors.Is(err, ErrSkipCheckpoint) {
			return fmt.Errorf("shard %s: %w", shardID, err)
		}
		consumed.Inc()
		if err != nil {
			continue
		}

		if err := c.store.SetCheckpoint(ctx, shardID, r.SequenceNumber); err != nil {
			return err
		}
		written.Inc()
	}

	c.logger.Info("shard drained", slog.String("stream", c.streamARN), slog.String("shard_id", shardID))
	return nil
}

type scan struct {
	fn      ScanFunc
	group   *errgroup.Group
	tracker *shardTracker
	donec   chan string
	sem     chan struct{}
}

// syncShards pulls the list of shards from the DynamoDB Streams API and
// starts reading every shard that is ready.
func (c *Consumer) syncShards(ctx context.Context, s *scan) error {
	c.logger.Debug("describing stream", slog.String("stream", c.streamARN))

	for shard, err := range c.catalog.Shards(ctx) {
		if err != nil {
			return err
		}
		s.tracker.add(shard)
	}
	c.startReadyShards(ctx, s)
	return nil
}

func (c *Consumer) startReadyShards(ctx context.Context, s *scan) {
	for _, shard := range s.tracker.ready() {
		shardID := shard.ID
		s.tracker.markActive(shardID)

		s.group.Go(func() error {
			if s.sem != nil {
				select {
				case s.sem <- struct{}{}:
					defer func() { <-s.sem }()
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			active := gaugeActiveShards.WithLabelValues(c.streamARN)
			active.Inc()
			defer active.Dec()

			if err := c.ScanShard(ctx, shardID, s.fn); err != nil {
				return err
			}
			if c.shardClosedHandler != nil {
				if err := c.shardClosedHandler(ctx, shardID); err != nil {
					return fmt.Errorf("shard closed handler error: %w", err)
				}
			}

			select {
			case s.donec <- shardID:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
}

// wait collects the shard goroutines. Cancellation of the caller's context is
// a normal shutdown and not reported as an error.
func (c *Consumer) wait(ctx context.Context, g *errgroup.Group) error {
	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// shardTracker is owned by the Scan loop goroutine.
type shardTracker struct {
	known     map[string]Shard
	active    map[string]struct{}
	completed map[string]struct{}
}

func newShardTracker() *shardTracker {
	return &shardTracker{
		known:     make(map[string]Shard),
		active:    make(map[string]struct{}),
		completed: make(map[string]struct{}),
	}
}

func (t *shardTracker) add(shard Shard) {
	t.known[shard.ID] = shard
}

func (t *shardTracker) markActive(shardID string) {
	t.active[shardID] = struct{}{}
}

func (t *shardTracker) markCompleted(shardID string) {
	delete(t.active, shardID)
	t.completed[shardID] = struct{}{}
}

func (t *shardTracker) activeCount() int {
	return len(t.active)
}

// ready returns the shards that are neither active nor drained and whose
// parent has been drained. A parent that is no longer reported by the stream
// has been trimmed and does not block its children.
func (t *shardTracker) ready() []Shard {
	var shards []Shard
	for _, id := range slices.Sorted(maps.Keys(t.known)) {
		if _, ok := t.active[id]; ok {
			continue
		}
		if _, ok := t.completed[id]; ok {
			continue
		}

		shard := t.known[id]
		if parent := shard.ParentID; parent != "" {
			_, known := t.known[parent]
			_, done := t.completed[parent]
			if known && !done {
				continue
			}
		}
		shards = append(shards, shard)
	}
	return shards
}
