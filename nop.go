package tiercache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/tiercache/eviction"
)

// NopTier stores nothing. Mutators succeed without effect, lookups miss and
// sizes are zero. It stands in for the accelerator when none is wanted.
type NopTier[V any] struct{}

var _ Tier[struct{}] = NopTier[struct{}]{}

func (NopTier[V]) ReadLock(string) func()  { return func() {} }
func (NopTier[V]) WriteLock(string) func() { return func() {} }
func (NopTier[V]) ReadLockAll() func()     { return func() {} }
func (NopTier[V]) WriteLockAll() func()    { return func() {} }

func (NopTier[V]) Get(context.Context, string) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) GetQuiet(context.Context, string) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) Put(context.Context, Entry[V]) (bool, error) { return true, nil }

// PutWithWriter still notifies w; write-behind must not lose the put.
func (NopTier[V]) PutWithWriter(ctx context.Context, e Entry[V], w Writer[V]) (bool, error) {
	if w != nil {
		if err := w.OnPut(ctx, e); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (NopTier[V]) Remove(context.Context, string) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) RemoveWithWriter(ctx context.Context, key string, w Writer[V]) (Entry[V], bool, error) {
	if w != nil {
		if err := w.OnRemove(ctx, key, Entry[V]{}, false); err != nil {
			return Entry[V]{}, false, err
		}
	}
	return Entry[V]{}, false, nil
}

func (NopTier[V]) PutIfAbsent(context.Context, Entry[V]) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) RemoveIfEqual(context.Context, Entry[V], Comparator[V]) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) ReplaceIfEqual(context.Context, Entry[V], Entry[V], Comparator[V]) (bool, error) {
	return false, nil
}

func (NopTier[V]) Replace(context.Context, Entry[V]) (Entry[V], bool, error) {
	return Entry[V]{}, false, nil
}

func (NopTier[V]) ContainsKey(context.Context, string) (bool, error)         { return false, nil }
func (NopTier[V]) ContainsKeyOnDisk(context.Context, string) (bool, error)   { return false, nil }
func (NopTier[V]) ContainsKeyOffHeap(context.Context, string) (bool, error)  { return false, nil }
func (NopTier[V]) ContainsKeyInMemory(context.Context, string) (bool, error) { return false, nil }

func (NopTier[V]) Keys(context.Context) ([]string, error) { return nil, nil }
func (NopTier[V]) RemoveAll(context.Context) error        { return nil }
func (NopTier[V]) Dispose(context.Context) error          { return nil }

func (NopTier[V]) Sizes(context.Context) (Sizes, error) { return Sizes{}, nil }
func (NopTier[V]) ExpireElements(context.Context) error { return nil }
func (NopTier[V]) Flush(context.Context) error          { return nil }
func (NopTier[V]) BufferFull() bool                     { return false }
func (NopTier[V]) Full() bool                           { return false }

func (NopTier[V]) EvictionPolicy() eviction.Kind { return eviction.None }

func (NopTier[V]) SetEvictionPolicy(k eviction.Kind) error {
	return fmt.Errorf("%w: no-op tier has no eviction policy (requested %s)", ErrUnsupported, k)
}

func (NopTier[V]) InternalContext() any { return nil }
func (NopTier[V]) Monitor() any         { return nil }
