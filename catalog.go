package consumer

import (
	"context"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
)

// CatalogOption is used to override defaults when creating a Catalog
type CatalogOption func(*Catalog)

// WithDescribeLimit sets the maximum number of shards returned per
// DescribeStream page. Zero leaves the service default (100).
func WithDescribeLimit(n int32) CatalogOption {
	return func(c *Catalog) {
		c.limit = n
	}
}

// Catalog enumerates the shards of a single stream.
type Catalog struct {
	client    StreamsAPI
	streamARN string
	limit     int32
}

// NewCatalog returns a Catalog for the stream identified by streamARN.
func NewCatalog(client StreamsAPI, streamARN string, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		client:    client,
		streamARN: streamARN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Shards walks DescribeStream pagination and yields every shard in the order
// the pages report them. Each call starts a fresh walk and reflects the
// stream at that time; shards created or closed during the walk may or may
// not appear, so callers repeat the enumeration to follow resharding.
//
// A failed page is yielded once as a *DiscoveryError and ends the sequence.
// Shards yielded before the failure stay yielded.
func (c *Catalog) Shards(ctx context.Context) iter.Seq2[Shard, error] {
	return func(yield func(Shard, error) bool) {
		var lastEvaluated *string

		for {
			params := &dynamodbstreams.DescribeStreamInput{
				StreamArn:             aws.String(c.streamARN),
				ExclusiveStartShardId: lastEvaluated,
			}
			if c.limit > 0 {
				params.Limit = aws.Int32(c.limit)
			}

			resp, err := c.client.DescribeStream(ctx, params)
			if err != nil {
				yield(Shard{}, &DiscoveryError{StreamARN: c.streamARN, Err: err})
				return
			}
			desc := resp.StreamDescription
			if desc == nil {
				yield(Shard{}, &DiscoveryError{StreamARN: c.streamARN, Err: errNoDescription})
				return
			}

			for _, s := range desc.Shards {
				if s.ShardId == nil {
					continue
				}
				if !yield(newShard(s), nil) {
					return
				}
			}

			if desc.LastEvaluatedShardId == nil {
				return
			}
			lastEvaluated = desc.LastEvaluatedShardId
		}
	}
}

// ShardIDs collects the IDs of every shard currently reported for the stream.
func (c *Catalog) ShardIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for shard, err := range c.Shards(ctx) {
		if err != nil {
			return nil, err
		}
		ids = append(ids, shard.ID)
	}
	return ids, nil
}
