package consumer

import "context"

// Store persists the resumption position of each shard. Keys are shard IDs
// when used by the Consumer; values are the sequence number of the last
// processed record. Values are opaque: any string, the empty string
// included, reads back exactly as written. Implementations live in the
// store/ subpackages.
type Store interface {
	// GetCheckpoint returns the stored value for key. ok is false when the
	// key has never been written; that is not an error.
	GetCheckpoint(ctx context.Context, key string) (value string, ok bool, err error)
	// SetCheckpoint replaces the stored value for key.
	SetCheckpoint(ctx context.Context, key, value string) error
}

// noopStore implements the storage interface with discard
type noopStore struct{}

func (n noopStore) GetCheckpoint(context.Context, string) (string, bool, error) { return "", false, nil }
func (n noopStore) SetCheckpoint(context.Context, string, string) error         { return nil }
