package consumer

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// Record is a single change event read from a shard. SequenceNumber orders
// records within the shard and is the value checkpointed after processing.
type Record struct {
	ShardID                     string
	SequenceNumber              string
	EventID                     string
	EventName                   types.OperationType
	ApproximateCreationDateTime time.Time
	Keys                        map[string]types.AttributeValue
	NewImage                    map[string]types.AttributeValue
	OldImage                    map[string]types.AttributeValue
}

func newRecord(shardID string, r types.Record) Record {
	rec := Record{
		ShardID:   shardID,
		EventID:   aws.ToString(r.EventID),
		EventName: r.EventName,
	}
	if r.Dynamodb != nil {
		rec.SequenceNumber = aws.ToString(r.Dynamodb.SequenceNumber)
		rec.ApproximateCreationDateTime = aws.ToTime(r.Dynamodb.ApproximateCreationDateTime)
		rec.Keys = r.Dynamodb.Keys
		rec.NewImage = r.Dynamodb.NewImage
		rec.OldImage = r.Dynamodb.OldImage
	}
	return rec
}

// UnmarshalKeys decodes the record's key attributes into out.
func (r Record) UnmarshalKeys(out interface{}) error {
	return unmarshalImage(r.Keys, out)
}

// UnmarshalNewImage decodes the item as it appeared after the change. The
// image is empty for REMOVE events and for KEYS_ONLY / OLD_IMAGE streams.
func (r Record) UnmarshalNewImage(out interface{}) error {
	return unmarshalImage(r.NewImage, out)
}

// UnmarshalOldImage decodes the item as it appeared before the change.
func (r Record) UnmarshalOldImage(out interface{}) error {
	return unmarshalImage(r.OldImage, out)
}

func unmarshalImage(image map[string]types.AttributeValue, out interface{}) error {
	av, err := attributevalue.FromDynamoDBStreamsMap(image)
	if err != nil {
		return err
	}
	return attributevalue.UnmarshalMap(av, out)
}

// Shard is a partition of the stream as reported by DescribeStream.
type Shard struct {
	ID                     string
	ParentID               string
	StartingSequenceNumber string
	EndingSequenceNumber   string
}

// Closed reports whether the shard has stopped accepting writes. A closed
// shard is finite and is eventually drained completely.
func (s Shard) Closed() bool {
	return s.EndingSequenceNumber != ""
}

func newShard(s types.Shard) Shard {
	shard := Shard{
		ID:       aws.ToString(s.ShardId),
		ParentID: aws.ToString(s.ParentShardId),
	}
	if r := s.SequenceNumberRange; r != nil {
		shard.StartingSequenceNumber = aws.ToString(r.StartingSequenceNumber)
		shard.EndingSequenceNumber = aws.ToString(r.EndingSequenceNumber)
	}
	return shard
}
