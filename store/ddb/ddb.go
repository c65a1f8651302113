// Package ddb stores checkpoints in a DynamoDB table with the hash key
// "namespace" and the range key "checkpoint_key".
package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

// DynamoDBAPI is the subset of the DynamoDB API the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithDynamoClient sets the dynamoDb client
func WithDynamoClient(svc DynamoDBAPI) Option {
	return func(s *Store) {
		s.client = svc
	}
}

// WithRetryer sets the retryer
func WithRetryer(r Retryer) Option {
	return func(s *Store) {
		s.retryer = r
	}
}

// New returns a checkpoint store that uses DynamoDB for underlying storage
func New(appName, tableName string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, fmt.Errorf("must provide app name")
	}
	if tableName == "" {
		return nil, fmt.Errorf("must provide table name")
	}

	s := &Store{
		tableName: tableName,
		appName:   appName,
		retryer: &DefaultRetryer{
			MaxRetries: 3,
			Backoff:    consumer.Backoff{Min: 50 * time.Millisecond, Max: time.Second, Jitter: 0.2},
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	// default client
	if s.client == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		s.client = dynamodb.NewFromConfig(cfg)
	}

	return s, nil
}

// Store writes every checkpoint straight to the table.
type Store struct {
	tableName string
	appName   string
	client    DynamoDBAPI
	retryer   Retryer
}

type item struct {
	Namespace      string `dynamodbav:"namespace"`
	CheckpointKey  string `dynamodbav:"checkpoint_key"`
	SequenceNumber string `dynamodbav:"sequence_number"`
}

// GetCheckpoint reads the checkpoint stored for key with a consistent read.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	params := &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"namespace":      &types.AttributeValueMemberS{Value: s.appName},
			"checkpoint_key": &types.AttributeValueMemberS{Value: key},
		},
	}

	var resp *dynamodb.GetItemOutput
	err := s.retry(ctx, func() (err error) {
		resp, err = s.client.GetItem(ctx, params)
		return err
	})
	if err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}
	if len(resp.Item) == 0 {
		return "", false, nil
	}

	var i item
	if err := attributevalue.UnmarshalMap(resp.Item, &i); err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}
	return i.SequenceNumber, true, nil
}

// SetCheckpoint stores a checkpoint for a shard (e.g. sequence number of last record processed by application).
// Upon failover, record processing is resumed from this point.
func (s *Store) SetCheckpoint(ctx context.Context, key, value string) error {
	av, err := attributevalue.MarshalMap(item{
		Namespace:      s.appName,
		CheckpointKey:  key,
		SequenceNumber: value,
	})
	if err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}

	params := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}
	err = s.retry(ctx, func() error {
		_, err := s.client.PutItem(ctx, params)
		return err
	})
	if err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// retry calls fn until it succeeds or the retryer gives up, sleeping
// between attempts. A cancelled context ends the wait with ctx.Err().
func (s *Store) retry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !s.retryer.ShouldRetry(attempt, err) {
			return err
		}

		d := s.retryer.Delay(attempt)
		if d <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
