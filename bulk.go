package tiercache

import "context"

// GetAll looks up each key under its own lock. Misses are left out.
func (f *FrontTier[V]) GetAll(ctx context.Context, keys []string) (map[string]Entry[V], error) {
	return f.getAll(ctx, keys, f.Get)
}

// GetAllQuiet is GetAll without access side effects.
func (f *FrontTier[V]) GetAllQuiet(ctx context.Context, keys []string) (map[string]Entry[V], error) {
	return f.getAll(ctx, keys, f.GetQuiet)
}

func (f *FrontTier[V]) getAll(ctx context.Context, keys []string, get lookupFunc[V]) (map[string]Entry[V], error) {
	out := make(map[string]Entry[V], len(keys))
	for _, k := range keys {
		if _, seen := out[k]; seen {
			continue
		}
		e, ok, err := get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = e
		}
	}
	return out, nil
}

// PutAll puts entries in order and stops at the first failure.
func (f *FrontTier[V]) PutAll(ctx context.Context, entries []Entry[V]) error {
	for _, e := range entries {
		if _, err := f.Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// RemoveKeys removes each key; a missing key is not an error.
func (f *FrontTier[V]) RemoveKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if _, _, err := f.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
