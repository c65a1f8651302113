package consumer

import (
	"context"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// ReaderOption is used to override defaults when creating a Reader
type ReaderOption func(*Reader)

// WithPollBackoff overrides the delay between polls of an open shard that
// has no new records. Backoff{} polls without delay.
func WithPollBackoff(b Backoff) ReaderOption {
	return func(r *Reader) {
		r.backoff = b
	}
}

// WithGetRecordsLimit overrides the maximum number of records to be returned
// in a single GetRecords call (specify a value of up to 1,000).
func WithGetRecordsLimit(n int32) ReaderOption {
	return func(r *Reader) {
		r.limit = n
	}
}

// WithRetryer enables re-issuing failed GetRecords calls. By default every
// fetch failure ends the read.
func WithRetryer(retryer Retryer) ReaderOption {
	return func(r *Reader) {
		r.retryer = retryer
	}
}

func withEmptyPollHook(fn func(shardID string)) ReaderOption {
	return func(r *Reader) {
		r.onEmptyPoll = fn
	}
}

// Reader reads the records of individual shards of one stream.
type Reader struct {
	client      StreamsAPI
	streamARN   string
	backoff     Backoff
	limit       int32
	retryer     Retryer
	onEmptyPoll func(shardID string)
}

// NewReader returns a Reader for the stream identified by streamARN.
func NewReader(client StreamsAPI, streamARN string, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:      client,
		streamARN:   streamARN,
		backoff:     DefaultPollBackoff,
		retryer:     noRetry{},
		onEmptyPoll: func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Records yields every record of the shard that comes strictly after the
// sequence number after, in shard order. An empty after starts at the oldest
// record still retained (TRIM_HORIZON).
//
// The sequence ends without error once the shard is closed and drained. For
// an open shard it polls until ctx is done, backing off while no new records
// arrive. Any failure is yielded once and ends the sequence: *IteratorError
// when the start position is unavailable, *FetchError when reading fails, or
// ctx.Err().
//
// After a failure, read again with the last sequence number that was
// processed. If the iterator expired (ErrIteratorExpired) for longer than the
// retention window, records between that sequence number and the trim horizon
// are lost.
func (r *Reader) Records(ctx context.Context, shardID, after string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		iterator, err := r.shardIterator(ctx, shardID, after)
		if err != nil {
			yield(Record{}, err)
			return
		}

		var empty int
		for iterator != nil {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}

			resp, err := r.getRecords(ctx, shardID, iterator)
			if err != nil {
				yield(Record{}, err)
				return
			}

			for _, rec := range resp.Records {
				if !yield(newRecord(shardID, rec), nil) {
					return
				}
			}

			// a nil NextShardIterator means the shard has been closed and
			// every record has been returned
			iterator = resp.NextShardIterator
			if iterator == nil {
				return
			}

			// an open shard with no new records returns an empty batch
			if len(resp.Records) > 0 {
				empty = 0
				continue
			}
			r.onEmptyPoll(shardID)
			if err := sleepWithContext(ctx, r.backoff.Duration(empty)); err != nil {
				yield(Record{}, err)
				return
			}
			empty++
		}
	}
}

func (r *Reader) shardIterator(ctx context.Context, shardID, after string) (*string, error) {
	params := &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(r.streamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
	}

	// if we have the sequence number, we should swap to AFTER_SEQUENCE_NUMBER
	if after != "" {
		params.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		params.SequenceNumber = aws.String(after)
	}

	resp, err := r.client.GetShardIterator(ctx, params)
	if err != nil {
		return nil, &IteratorError{ShardID: shardID, After: after, Err: err}
	}
	if resp.ShardIterator == nil {
		return nil, &IteratorError{ShardID: shardID, After: after, Err: errNoIterator}
	}
	return resp.ShardIterator, nil
}

func (r *Reader) getRecords(ctx context.Context, shardID string, iterator *string) (*dynamodbstreams.GetRecordsOutput, error) {
	params := &dynamodbstreams.GetRecordsInput{
		ShardIterator: iterator,
	}
	if r.limit > 0 {
		params.Limit = aws.Int32(r.limit)
	}

	for attempt := 0; ; attempt++ {
		resp, err := r.client.GetRecords(ctx, params)
		if err == nil {
			return resp, nil
		}
		if isExpiredIterator(err) || !r.retryer.ShouldRetry(attempt, err) {
			return nil, &FetchError{ShardID: shardID, Err: err}
		}
		if err := sleepWithContext(ctx, r.retryer.Delay(attempt)); err != nil {
			return nil, err
		}
	}
}
