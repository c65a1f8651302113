package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consumer "github.com/alexgridx/dynamodb-streams-consumer"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "shardId-00000001", want: "shardId-00000001"},
		{key: "a/b", want: "a-b"},
		{key: "a/ /b", want: "a-b"},
		{key: "arn:aws:dynamodb:us-east-1:1:table/t/stream/2024", want: "arn-aws-dynamodb-us-east-1-1-table-t-stream-2024"},
		{key: "über", want: "-ber"},
		{key: "v1.2_x", want: "v1.2_x"},
		{key: "", want: ""},
	}

	safe := regexp.MustCompile(`^[A-Za-z0-9_.-]*$`)
	for _, tt := range tests {
		got := Escape(tt.key)
		assert.Equal(t, tt.want, got, "escape %q", tt.key)
		assert.Regexp(t, safe, got)
		assert.Equal(t, got, Escape(got), "escape is idempotent for %q", tt.key)
	}
}

func TestNew(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "checkpoints")

	s, err := New(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(root, "a-b"), s.Path("a/b"))

	// existing directory is fine
	_, err = New(root)
	require.NoError(t, err)
}

func TestNew_RootIsFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "checkpoints")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	_, err := New(root)
	assert.ErrorIs(t, err, consumer.ErrStorage)
}

func Test_CheckpointLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	// absent
	val, ok, err := s.GetCheckpoint(ctx, "shard-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)

	// set
	require.NoError(t, s.SetCheckpoint(ctx, "shard-1", "100"))

	// get
	val, ok, err = s.GetCheckpoint(ctx, "shard-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "100", val)

	// overwrite
	require.NoError(t, s.SetCheckpoint(ctx, "shard-1", "2"))
	require.NoError(t, s.SetCheckpoint(ctx, "shard-1", "2"))
	val, _, err = s.GetCheckpoint(ctx, "shard-1")
	require.NoError(t, err)
	assert.Equal(t, "2", val)

	b, err := os.ReadFile(s.Path("shard-1"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(b))
}

func Test_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.SetCheckpoint(ctx, "a:b", "1"))
	require.NoError(t, s.SetCheckpoint(ctx, "c", "2"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a-b", "c"}, names)
}

func Test_CollidingKeysShareValue(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SetCheckpoint(ctx, "a/b", "1"))
	val, ok, err := s.GetCheckpoint(ctx, "a:b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", val)
}

func Test_EmptyValueRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SetCheckpoint(ctx, "shard-1", ""))
	val, ok, err := s.GetCheckpoint(ctx, "shard-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", val)
}

func Test_ConcurrentSetDifferentKeys(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SetCheckpoint(ctx, fmt.Sprintf("shard-%d", i), fmt.Sprintf("seq-%d", i))
		}(i)
	}
	wg.Wait()

	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "set shard-%d", i)

		key := fmt.Sprintf("shard-%d", i)
		val, ok, err := s.GetCheckpoint(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "get %s", key)
		assert.Equal(t, fmt.Sprintf("seq-%d", i), val)
		want = append(want, key)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	tmp := regexp.MustCompile(`^\..*\.tmp$`)
	var names []string
	for _, e := range entries {
		assert.NotRegexp(t, tmp, e.Name(), "temporary file left behind")
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, want, names)
}

func Test_UnmappableKeys(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", ".", ".."} {
		err := s.SetCheckpoint(ctx, key, "1")
		assert.ErrorIs(t, err, consumer.ErrStorage, "set %q", key)

		_, _, err = s.GetCheckpoint(ctx, key)
		assert.ErrorIs(t, err, consumer.ErrStorage, "get %q", key)
	}
}

func Test_ReadError(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	// a directory where the checkpoint file should be cannot be read
	require.NoError(t, os.Mkdir(s.Path("shard-1"), 0o755))

	_, _, err = s.GetCheckpoint(ctx, "shard-1")
	var se *consumer.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get", se.Op)
	assert.Equal(t, "shard-1", se.Key)
}

var _ consumer.Store = (*Store)(nil)
