// Package mysql stores checkpoints in a MySQL table:
//
//	CREATE TABLE checkpoints (
//		namespace       VARCHAR(255) NOT NULL,
//		checkpoint_key  VARCHAR(255) NOT NULL,
//		sequence_number VARCHAR(255) NOT NULL,
//		PRIMARY KEY (namespace, checkpoint_key)
//	);
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

const getCheckpointQuery = "SELECT sequence_number FROM %s WHERE namespace = ? AND checkpoint_key = ?"

const upsertCheckpointQuery = "INSERT INTO %s (namespace, checkpoint_key, sequence_number) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE sequence_number = VALUES(sequence_number)"

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithDB uses an already opened connection pool instead of opening one from
// the DSN.
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.conn = db
	}
}

// New returns a checkpoint store backed by tableName. dsn is parsed with
// mysql.ParseDSN, e.g. "user:pass@tcp(127.0.0.1:3306)/consumer".
func New(appName, tableName, dsn string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, fmt.Errorf("must provide app name")
	}
	if tableName == "" {
		return nil, fmt.Errorf("must provide table name")
	}

	s := &Store{
		appName:   appName,
		tableName: "`" + strings.ReplaceAll(tableName, "`", "``") + "`",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.conn == nil {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "mysql connector")
		}
		s.conn = sql.OpenDB(connector)
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

func describe(err error, msg string) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return errors.Wrapf(err, "%s (error %d)", msg, myErr.Number)
	}
	return errors.Wrap(err, msg)
}
