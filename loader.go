package tiercache

import (
	"context"
	"fmt"
)

// Loader produces the entry for a key missing from both tiers.
// A zero Key in the result is filled with the requested key.
type Loader[V any] func(ctx context.Context, key string) (Entry[V], error)

// GetOrLoad returns the entry for key, calling load and storing its result
// through Put when neither tier has it. Concurrent misses on the same key
// share one load; each caller receives its own read-isolated copy. A caller
// whose ctx ends returns ctx.Err() without cancelling the shared load.
func (f *FrontTier[V]) GetOrLoad(ctx context.Context, key string, load Loader[V]) (Entry[V], error) {
	const op = "get_or_load"
	var zero Entry[V]
	if key == "" {
		return zero, invalidArg(op, "empty key")
	}
	if load == nil {
		return zero, invalidArg(op, "nil loader")
	}
	if e, ok, err := f.Get(ctx, key); err != nil || ok {
		return e, err
	}

	// the shared load outlives any one caller; each caller still stops
	// waiting when its own ctx ends
	lctx := context.WithoutCancel(ctx)
	ch := f.loads.DoChan(key, func() (any, error) {
		e, err := load(lctx, key)
		if err != nil {
			return nil, err
		}
		if e.Key == "" {
			e.Key = key
		}
		if e.Key != key {
			return nil, invalidArg(op, fmt.Sprintf("loader returned key %q for %q", e.Key, key))
		}
		if _, err := f.Put(lctx, e); err != nil {
			return nil, err
		}
		f.log.Debug("loaded missing entry", Fields{"key": key})
		return e, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		out, _, err := f.read(op, r.Val.(Entry[V]))
		return out, err
	}
}
