package tiercache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache/eviction"
)

type recordingWriter struct {
	puts, removes int
	err           error
}

func (w *recordingWriter) OnPut(context.Context, Entry[int]) error {
	w.puts++
	return w.err
}

func (w *recordingWriter) OnRemove(_ context.Context, _ string, _ Entry[int], found bool) error {
	w.removes++
	if found {
		return errors.New("nop tier never has a prior entry")
	}
	return w.err
}

func TestNopTierStoresNothing(t *testing.T) {
	ctx := context.Background()
	var n NopTier[int]

	ok, err := n.Put(ctx, Entry[int]{Key: "k", Value: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := n.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	has, err := n.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := n.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	s, err := n.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, Sizes{}, s)
	assert.False(t, n.Full())
	assert.False(t, n.BufferFull())
	assert.NoError(t, n.Dispose(ctx))
}

func TestNopTierStillNotifiesWriter(t *testing.T) {
	ctx := context.Background()
	var n NopTier[int]
	w := &recordingWriter{}

	_, err := n.PutWithWriter(ctx, Entry[int]{Key: "k"}, w)
	require.NoError(t, err)
	_, _, err = n.RemoveWithWriter(ctx, "k", w)
	require.NoError(t, err)
	assert.Equal(t, 1, w.puts)
	assert.Equal(t, 1, w.removes)

	w.err = errors.New("queue closed")
	_, err = n.PutWithWriter(ctx, Entry[int]{Key: "k"}, w)
	assert.ErrorIs(t, err, w.err)
}

func TestNopTierEvictionPolicyUnsupported(t *testing.T) {
	var n NopTier[int]
	assert.Equal(t, eviction.None, n.EvictionPolicy())
	assert.ErrorIs(t, n.SetEvictionPolicy(eviction.LRU), ErrUnsupported)
}
