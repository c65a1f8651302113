// The memory store provides a store that can be used for testing and single-process applications.
// DO NOT USE this in a production application where persistence beyond a single application lifecycle is necessary
// or when there are multiple consumers.
package memory

import (
	"context"
	"sync"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

var _ consumer.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

type Store struct {
	sync.Map
}

func (c *Store) SetCheckpoint(_ context.Context, key, value string) error {
	c.Store(key, value)
	return nil
}

func (c *Store) GetCheckpoint(_ context.Context, key string) (string, bool, error) {
	val, ok := c.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}
