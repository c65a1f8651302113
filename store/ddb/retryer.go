package ddb

import (
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

// Retryer decides whether a failed GetItem or PutItem is issued again and
// how long to wait first. attempt counts the failures so far, starting at 0.
type Retryer interface {
	ShouldRetry(attempt int, err error) bool
	Delay(attempt int) time.Duration
}

// DefaultRetryer retries throttled requests up to MaxRetries times, waiting
// Backoff.Duration(attempt) before each retry.
type DefaultRetryer struct {
	MaxRetries int
	Backoff    consumer.Backoff
}

// ShouldRetry when a throttling error occurred
func (r *DefaultRetryer) ShouldRetry(attempt int, err error) bool {
	if attempt >= r.MaxRetries {
		return false
	}

	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "RequestLimitExceeded"
}

// Delay returns the wait before the next attempt.
func (r *DefaultRetryer) Delay(attempt int) time.Duration {
	return r.Backoff.Duration(attempt)
}
