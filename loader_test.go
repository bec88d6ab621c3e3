package tiercache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/tier/memory"
)

func TestGetOrLoadStoresLoadedEntry(t *testing.T) {
	fx := newFixture(t, 10, nil)
	var calls atomic.Int32
	load := func(_ context.Context, key string) (tiercache.Entry[string], error) {
		calls.Add(1)
		return tiercache.Entry[string]{Value: "loaded:" + key}, nil
	}

	got, err := fx.front.GetOrLoad(fx.ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, "loaded:k", got.Value)
	assert.True(t, has(t, fx.auth.Tier, "k"))
	assert.True(t, has(t, fx.acc.Tier, "k"))

	_, err = fx.front.GetOrLoad(fx.ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoadSkipsLoaderOnHit(t *testing.T) {
	fx := newFixture(t, 10, nil)
	_, err := fx.auth.Tier.Put(fx.ctx, entry("k", "cached"))
	require.NoError(t, err)

	got, err := fx.front.GetOrLoad(fx.ctx, "k", func(context.Context, string) (tiercache.Entry[string], error) {
		t.Fatal("loader called on a hit")
		return tiercache.Entry[string]{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Value)
}

func TestGetOrLoadErrors(t *testing.T) {
	fx := newFixture(t, 10, nil)
	boom := errors.New("source down")

	_, err := fx.front.GetOrLoad(fx.ctx, "k", func(context.Context, string) (tiercache.Entry[string], error) {
		return tiercache.Entry[string]{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, has(t, fx.auth.Tier, "k"))

	_, err = fx.front.GetOrLoad(fx.ctx, "k", func(context.Context, string) (tiercache.Entry[string], error) {
		return entry("other", "v"), nil
	})
	assert.ErrorIs(t, err, tiercache.ErrInvalidArgument)

	_, err = fx.front.GetOrLoad(fx.ctx, "", nil)
	assert.ErrorIs(t, err, tiercache.ErrInvalidArgument)
	_, err = fx.front.GetOrLoad(fx.ctx, "k", nil)
	assert.ErrorIs(t, err, tiercache.ErrInvalidArgument)
}

func TestGetOrLoadConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f, err := tiercache.NewAcceleratedDurable[string](
		memory.New[string](memory.Config{MaxEntries: 4}),
		memory.New[string](memory.Config{}),
		tiercache.Options[string]{},
	)
	require.NoError(t, err)

	const callers = 16
	var calls atomic.Int32
	load := func(context.Context, string) (tiercache.Entry[string], error) {
		calls.Add(1)
		return tiercache.Entry[string]{Value: "v"}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := f.GetOrLoad(ctx, "hot", load)
			if err == nil {
				results[i] = e.Value
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "v", r)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.LessOrEqual(t, calls.Load(), int32(callers))
}

func TestGetOrLoadCallerCancelDoesNotFailSharedLoad(t *testing.T) {
	f, err := tiercache.NewAcceleratedDurable[string](
		memory.New[string](memory.Config{MaxEntries: 4}),
		memory.New[string](memory.Config{}),
		tiercache.Options[string]{},
	)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(ctx context.Context, key string) (tiercache.Entry[string], error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return tiercache.Entry[string]{}, err
		}
		return tiercache.Entry[string]{Value: "v"}, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.GetOrLoad(first, "k", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		e   tiercache.Entry[string]
		err error
	}
	second := make(chan result, 1)
	go func() {
		e, err := f.GetOrLoad(context.Background(), "k", load)
		second <- result{e, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, "v", r.e.Value)

	got, ok, err := f.GetQuiet(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok, "the load stored its result after the first caller left")
	assert.Equal(t, "v", got.Value)
}
