package consumer

import "time"

// Retryer decides whether a failed GetRecords call is re-issued with the same
// iterator. attempt is the number of failures so far, starting at 0.
type Retryer interface {
	ShouldRetry(attempt int, err error) bool
	Delay(attempt int) time.Duration
}

// noRetry surfaces every fetch failure to the caller.
type noRetry struct{}

func (noRetry) ShouldRetry(int, error) bool { return false }
func (noRetry) Delay(int) time.Duration     { return 0 }

// DefaultRetryer retries throttling and internal server errors up to
// MaxAttempts times, waiting Backoff between attempts. Expired iterators are
// never retried.
type DefaultRetryer struct {
	MaxAttempts int
	Backoff     Backoff
}

// ShouldRetry when error occured
func (r *DefaultRetryer) ShouldRetry(attempt int, err error) bool {
	if r == nil {
		return false
	}
	return attempt < r.MaxAttempts && isRetryable(err)
}

// Delay returns the wait before the next attempt.
func (r *DefaultRetryer) Delay(attempt int) time.Duration {
	if r == nil {
		return 0
	}
	return r.Backoff.Duration(attempt)
}
