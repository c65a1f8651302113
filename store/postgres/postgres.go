// Package postgres stores checkpoints in a Postgres table:
//
//	CREATE TABLE checkpoints (
//		namespace       text NOT NULL,
//		checkpoint_key  text NOT NULL,
//		sequence_number text NOT NULL,
//		PRIMARY KEY (namespace, checkpoint_key)
//	);
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

const getCheckpointQuery = `SELECT sequence_number FROM %s WHERE namespace = $1 AND checkpoint_key = $2`

const upsertCheckpointQuery = `INSERT INTO %s (namespace, checkpoint_key, sequence_number)
VALUES ($1, $2, $3)
ON CONFLICT (namespace, checkpoint_key)
DO UPDATE SET sequence_number = EXCLUDED.sequence_number`

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithDB uses an already opened connection pool instead of opening one from
// the connection string.
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.conn = db
	}
}

// New returns a checkpoint store backed by tableName. Using connectionStr
// makes it possible to pass driver specific settings.
func New(appName, tableName, connectionStr string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, fmt.Errorf("must provide app name")
	}
	if tableName == "" {
		return nil, fmt.Errorf("must provide table name")
	}

	s := &Store{
		appName:   appName,
		tableName: pq.QuoteIdentifier(tableName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.conn == nil {
		conn, err := sql.Open("postgres", connectionStr)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres connection")
		}
		s.conn = conn
	}

	return s, nil
}

// Store keeps one row per namespace and key.
type Store struct {
	appName   string
	tableName string
	conn      *sql.DB
}

// GetCheckpoint returns the checkpoint stored for key.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.conn.QueryRowContext(ctx, fmt.Sprintf(getCheckpointQuery, s.tableName), s.appName, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: describe(err, "select checkpoint")}
	}
	return val, true, nil
}

// SetCheckpoint stores a checkpoint for a shard (e.g. sequence number of last record processed by application).
// Upon failover, record processing is resumed from this point.
func (s *Store) SetCheckpoint(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(upsertCheckpointQuery, s.tableName), s.appName, key, value)
	if err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: describe(err, "upsert checkpoint")}
	}
	return nil
}

// Shutdown closes the connection pool.
func (s *Store) Shutdown() error {
	return s.conn.Close()
}

// describe adds the postgres error code name to driver errors.
func describe(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errors.Wrapf(err, "%s (%s)", msg, pqErr.Code.Name())
	}
	return errors.Wrap(err, msg)
}
