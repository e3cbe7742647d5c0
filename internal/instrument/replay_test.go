package instrument

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/webcache-mcp/internal/cache"
)

func TestReplayNeverCalled(t *testing.T) {
	tr, err := Replay(context.Background(), cache.NewMemory(nil), "svc.Idle")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.Idle was called 0 times:"}, tr.Lines())
}

func TestReplayRendersCallsInOrder(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(nil)
	rec := NewRecorder(store)
	greet := Wrap(rec, "svc.Greet", func(_ context.Context, name string) (string, error) {
		return "hello " + name, nil
	})
	for _, n := range []string{"ann", "bob"} {
		_, err := greet(ctx, n)
		require.NoError(t, err)
	}

	tr, err := Replay(ctx, store, "svc.Greet")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"svc.Greet was called 2 times:",
		`svc.Greet("ann") -> hello ann`,
		`svc.Greet("bob") -> hello bob`,
	}, tr.Lines())

	var buf bytes.Buffer
	_, err = tr.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, tr.String()+"\n", buf.String())
}

func TestReplayReportsMismatch(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(nil)
	require.NoError(t, store.Append(ctx, InputsKey("svc.Half"), []byte("(1)")))
	require.NoError(t, store.Append(ctx, OutputsKey("svc.Half"), []byte("one")))
	require.NoError(t, store.Append(ctx, InputsKey("svc.Half"), []byte("(2)")))

	tr, err := Replay(ctx, store, "svc.Half")
	require.ErrorIs(t, err, ErrLogMismatch)
	var me *LogMismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 2, me.Inputs)
	assert.Equal(t, 1, me.Outputs)

	require.NotNil(t, tr)
	assert.Equal(t, []string{
		"svc.Half was called 1 times:",
		"svc.Half(1) -> one",
	}, tr.Lines())
}

func TestReplayUsesLogsNotCounter(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(nil)
	_, err := store.Incr(ctx, CounterKey("svc.Op"))
	require.NoError(t, err)

	tr, err := Replay(ctx, store, "svc.Op")
	require.NoError(t, err)
	assert.Equal(t, "svc.Op was called 0 times:", tr.String())
}

func TestReplayRejectsUndecodableRecord(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(nil)
	require.NoError(t, store.Append(ctx, InputsKey("svc.Bin"), []byte{0xff}))
	require.NoError(t, store.Append(ctx, OutputsKey("svc.Bin"), []byte("x")))

	_, err := Replay(ctx, store, "svc.Bin")
	var de *cache.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "()", FormatArgs())
	assert.Equal(t, `("foo")`, FormatArgs([]byte("foo")))
	assert.Equal(t, `(1, "a", nil, true)`, FormatArgs(1, "a", nil, true))
}
