package consumer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

type streamsClientMock struct {
	describeStreamMock   func(*dynamodbstreams.DescribeStreamInput) (*dynamodbstreams.DescribeStreamOutput, error)
	getShardIteratorMock func(*dynamodbstreams.GetShardIteratorInput) (*dynamodbstreams.GetShardIteratorOutput, error)
	getRecordsMock       func(*dynamodbstreams.GetRecordsInput) (*dynamodbstreams.GetRecordsOutput, error)
}

func (c *streamsClientMock) DescribeStream(_ context.Context, in *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	return c.describeStreamMock(in)
}

func (c *streamsClientMock) GetShardIterator(_ context.Context, in *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	return c.getShardIteratorMock(in)
}

func (c *streamsClientMock) GetRecords(_ context.Context, in *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	return c.getRecordsMock(in)
}

// fakeShard is served by fakeStream. Every GetRecords call returns the next
// batch; after the last batch a closed shard returns no continuation while an
// open shard keeps returning empty batches.
type fakeShard struct {
	id      string
	parent  string
	batches [][]string
	closed  bool
}

// fakeStream is an in-memory DynamoDB stream. Iterators have the form
// "<shard>|<batch index>|<after>" and records at or before <after> are
// filtered out, which mimics AFTER_SEQUENCE_NUMBER.
type fakeStream struct {
	shards []*fakeShard

	mu             sync.Mutex
	getRecordCalls map[string]int
	iteratorTypes  map[string]types.ShardIteratorType
}

func newFakeStream(shards ...*fakeShard) *fakeStream {
	return &fakeStream{
		shards:         shards,
		getRecordCalls: map[string]int{},
		iteratorTypes:  map[string]types.ShardIteratorType{},
	}
}

func (s *fakeStream) shard(id string) *fakeShard {
	for _, sh := range s.shards {
		if sh.id == id {
			return sh
		}
	}
	return nil
}

func (s *fakeStream) calls(shardID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRecordCalls[shardID]
}

func (s *fakeStream) DescribeStream(_ context.Context, in *dynamodbstreams.DescribeStreamInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	desc := &types.StreamDescription{StreamArn: in.StreamArn}
	for _, sh := range s.shards {
		shard := types.Shard{
			ShardId:             aws.String(sh.id),
			SequenceNumberRange: &types.SequenceNumberRange{StartingSequenceNumber: aws.String("1")},
		}
		if sh.parent != "" {
			shard.ParentShardId = aws.String(sh.parent)
		}
		if sh.closed {
			shard.SequenceNumberRange.EndingSequenceNumber = aws.String("999")
		}
		desc.Shards = append(desc.Shards, shard)
	}
	return &dynamodbstreams.DescribeStreamOutput{StreamDescription: desc}, nil
}

func (s *fakeStream) GetShardIterator(_ context.Context, in *dynamodbstreams.GetShardIteratorInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	shardID := aws.ToString(in.ShardId)
	if s.shard(shardID) == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("shard not found")}
	}

	s.mu.Lock()
	s.iteratorTypes[shardID] = in.ShardIteratorType
	s.mu.Unlock()

	after := ""
	if in.ShardIteratorType == types.ShardIteratorTypeAfterSequenceNumber {
		after = aws.ToString(in.SequenceNumber)
	}
	return &dynamodbstreams.GetShardIteratorOutput{
		ShardIterator: aws.String(fmt.Sprintf("%s|0|%s", shardID, after)),
	}, nil
}

func (s *fakeStream) GetRecords(_ context.Context, in *dynamodbstreams.GetRecordsInput, _ ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	parts := strings.SplitN(aws.ToString(in.ShardIterator), "|", 3)
	shardID, after := parts[0], parts[2]
	idx, _ := strconv.Atoi(parts[1])

	s.mu.Lock()
	s.getRecordCalls[shardID]++
	s.mu.Unlock()

	sh := s.shard(shardID)
	out := &dynamodbstreams.GetRecordsOutput{Records: []types.Record{}}
	if idx < len(sh.batches) {
		for _, seq := range sh.batches[idx] {
			if after != "" && !seqAfter(seq, after) {
				continue
			}
			out.Records = append(out.Records, streamRecord(seq))
		}
	}

	next := idx + 1
	if next > len(sh.batches) {
		next = len(sh.batches)
	}
	if sh.closed && idx >= len(sh.batches)-1 {
		return out, nil
	}
	out.NextShardIterator = aws.String(fmt.Sprintf("%s|%d|%s", shardID, next, after))
	return out, nil
}

func seqAfter(seq, after string) bool {
	if len(seq) != len(after) {
		return len(seq) > len(after)
	}
	return seq > after
}

func streamRecord(seq string) types.Record {
	return types.Record{
		EventID:   aws.String("event-" + seq),
		EventName: types.OperationTypeInsert,
		Dynamodb: &types.StreamRecord{
			SequenceNumber: aws.String(seq),
			Keys: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: seq},
			},
		},
	}
}

type fakeStore struct {
	mu     sync.Mutex
	cache  map[string]string
	getErr error
	setErr error
	writes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{cache: map[string]string{}}
}

func (s *fakeStore) GetCheckpoint(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", false, &StorageError{Op: "get", Key: key, Err: s.getErr}
	}
	val, ok := s.cache[key]
	return val, ok, nil
}

func (s *fakeStore) SetCheckpoint(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return &StorageError{Op: "set", Key: key, Err: s.setErr}
	}
	s.cache[key] = value
	s.writes++
	return nil
}

func (s *fakeStore) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[key]
}
