package blobs

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/instrument"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	kv, err := cache.Open(filepath.Join(t.TempDir(), "blobs.bbolt"), cache.Options{Bucket: "blobs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return New(instrument.NewRecorder(kv))
}

func TestPutTwiceYieldsDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	k1, err := s.Put(ctx, []byte("foo"))
	require.NoError(t, err)
	k2, err := s.Put(ctx, []byte("foo"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
	_, err = uuid.Parse(k1)
	assert.NoError(t, err)

	raw, err := s.Get(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, []byte("foo"), raw)

	str, err := s.GetString(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, "foo", str)

	n, err := s.Puts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetInt(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	k, err := s.Put(ctx, []byte("123"))
	require.NoError(t, err)
	n, err := s.GetInt(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(123), n)

	k, err = s.Put(ctx, []byte("foo"))
	require.NoError(t, err)
	_, err = s.GetInt(ctx, k)
	var de *cache.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestGetAbsentKey(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestReplayPut(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var keys []string
	for _, v := range []string{"first", "second", "third"} {
		k, err := s.Put(ctx, []byte(v))
		require.NoError(t, err)
		keys = append(keys, k)
	}

	tr, err := s.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"blobs.Store.Put was called 3 times:",
		fmt.Sprintf(`blobs.Store.Put("first") -> %s`, keys[0]),
		fmt.Sprintf(`blobs.Store.Put("second") -> %s`, keys[1]),
		fmt.Sprintf(`blobs.Store.Put("third") -> %s`, keys[2]),
	}, tr.Lines())
}

func TestResetKeepsBlobs(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	k, err := s.Put(ctx, []byte("keep"))
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))

	n, err := s.Puts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := s.GetString(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "keep", got)
}
