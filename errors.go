package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/aws/smithy-go"
)

// Error kinds, matched with errors.Is. ErrIteratorExpired narrows ErrFetch.
var (
	ErrDiscovery           = errors.New("shard discovery failed")
	ErrIteratorAcquisition = errors.New("shard iterator acquisition failed")
	ErrFetch               = errors.New("get records failed")
	ErrIteratorExpired     = errors.New("shard iterator expired")
	ErrStorage             = errors.New("checkpoint storage failed")
	ErrCredentialNotFound  = errors.New("credential not found")
)

// ErrSkipCheckpoint is returned by a ScanFunc to continue scanning without
// persisting the sequence number of the record it was called with.
var ErrSkipCheckpoint = errors.New("skip checkpoint")

// DiscoveryError is returned when a stream or its shards cannot be described.
// Table is set instead of StreamARN when the table's stream was looked up.
type DiscoveryError struct {
	StreamARN string
	Table     string
	Err       error
}

func (e *DiscoveryError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("describe table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("describe stream %s: %v", e.StreamARN, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }

// IteratorError is returned when the requested starting position of a shard
// cannot be turned into an iterator, e.g. the shard is gone or the sequence
// number has aged out of the retention window. It is never converted into a
// TRIM_HORIZON read; callers decide whether to restart from the oldest record.
type IteratorError struct {
	ShardID string
	After   string
	Err     error
}

func (e *IteratorError) Error() string {
	if e.After == "" {
		return fmt.Sprintf("get shard iterator %s at trim horizon: %v", e.ShardID, e.Err)
	}
	return fmt.Sprintf("get shard iterator %s after %s: %v", e.ShardID, e.After, e.Err)
}

func (e *IteratorError) Unwrap() error { return e.Err }

func (e *IteratorError) Is(target error) bool { return target == ErrIteratorAcquisition }

// Trimmed reports whether the starting sequence number is older than the
// stream's retention window.
func (e *IteratorError) Trimmed() bool {
	var trimmed *types.TrimmedDataAccessException
	return errors.As(e.Err, &trimmed)
}

// FetchError is returned when GetRecords fails mid-shard. The shard position
// is not lost: the caller resumes by reading again after its last
// checkpointed sequence number.
//
// When the iterator expired the error also matches ErrIteratorExpired. A
// restart from the last checkpoint then delivers at-least-once, and if the
// expiry outlived the retention window the records in between are gone.
type FetchError struct {
	ShardID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("get records %s: %v", e.ShardID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrFetch:
		return true
	case ErrIteratorExpired:
		return isExpiredIterator(e.Err)
	}
	return false
}

// Retryable reports whether re-fetching with the same iterator may succeed.
func (e *FetchError) Retryable() bool {
	return isRetryable(e.Err)
}

// StorageError is returned by checkpoint stores for any failure reading or
// writing a persisted position.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func isExpiredIterator(err error) bool {
	var expired *types.ExpiredIteratorException
	return errors.As(err, &expired)
}

var retryableErrorCodes = map[string]bool{
	"LimitExceededException":                 true,
	"ProvisionedThroughputExceededException": true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"RequestLimitExceeded":                   true,
}

var sdkRetryables = retry.IsErrorRetryables(retry.DefaultRetryables)

// isRetryable determines whether the error is recoverable by issuing the
// same request again: throttling and server error codes, plus the transport
// failures the SDK classifies as retryable (connection reset, refused dial,
// timeouts). Cancellation is never retryable.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && retryableErrorCodes[apiErr.ErrorCode()] {
		return true
	}
	return sdkRetryables.IsErrorRetryable(err) == aws.TrueTernary
}

var (
	errNoIterator    = errors.New("service returned no shard iterator")
	errNoDescription = errors.New("service returned no stream description")
)
