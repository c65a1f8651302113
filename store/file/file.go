// Package file stores checkpoints on the local filesystem, one file per key.
// Keys are escaped into file names with Escape, so distinct keys that differ
// only in characters outside [A-Za-z0-9_.-] share a file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Escape replaces every run of characters outside [A-Za-z0-9_.-] with a
// single '-'. It is deterministic and Escape(Escape(k)) == Escape(k).
func Escape(key string) string {
	return unsafeRun.ReplaceAllString(key, "-")
}

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithFileMode sets the permissions of newly written checkpoint files.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// New returns a store rooted at dir. The directory is created if missing.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("must provide root directory")
	}

	s := &Store{
		root: dir,
		mode: 0o644,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &consumer.StorageError{Op: "init", Key: dir, Err: err}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &consumer.StorageError{Op: "init", Key: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &consumer.StorageError{Op: "init", Key: dir, Err: fmt.Errorf("%s is not a directory", dir)}
	}
	return s, nil
}

// Store keeps the value of each key in <root>/<Escape(key)>.
type Store struct {
	root string
	mode fs.FileMode
}

// Path returns the file that holds the value of key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, Escape(key))
}

// GetCheckpoint reads the value stored for key. A missing file is reported
// with ok == false and a nil error.
func (s *Store) GetCheckpoint(ctx context.Context, key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &consumer.StorageError{Op: "get", Key: key, Err: err}
	}
	return string(b), true, nil
}

// SetCheckpoint replaces the value stored for key. The value is written to a
// temporary file in the same directory and renamed into place, so readers
// see either the old or the new value.
func (s *Store) SetCheckpoint(ctx context.Context, key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}

	if err := writeFile(path, []byte(value), s.mode); err != nil {
		return &consumer.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	switch name := Escape(key); name {
	case "", ".", "..":
		return "", fmt.Errorf("key %q does not map to a file name", key)
	}
	return s.Path(key), nil
}

func writeFile(path string, data []byte, mode fs.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
