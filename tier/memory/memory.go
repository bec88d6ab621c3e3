// Package memory is a bounded in-heap tier.
//
// Unpinned entries are evicted in the configured order (LRU by default) once
// MaxEntries is reached; pinned entries are never evicted, so the tier can
// serve as the authority of a passthrough composition. Expiry is lazy: an
// expired entry is dropped when it is next looked at or by ExpireElements.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/stripe"
)

type Config struct {
	MaxEntries int           // <= 0 => unbounded
	Policy     eviction.Kind // "" => LRU
	Stripes    int           // lock domain stripes; 0 => default
	Logger     tiercache.Logger
	Now        func() time.Time // clock override for tests
}

// Stats is what Monitor returns.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

type Tier[V any] struct {
	mu      sync.Mutex
	entries map[string]tiercache.Entry[V]
	policy  eviction.Policy // unpinned keys only
	pinned  int
	stats   Stats
	closed  bool

	max   int
	locks *stripe.Locks
	log   tiercache.Logger
	now   func() time.Time
}

var (
	_ tiercache.Tier[struct{}] = (*Tier[struct{}])(nil)
	_ tiercache.Pinner         = (*Tier[struct{}])(nil)
)

func New[V any](cfg Config) *Tier[V] {
	t := &Tier[V]{
		entries: make(map[string]tiercache.Entry[V]),
		max:     cfg.MaxEntries,
		locks:   stripe.New(cfg.Stripes),
		log:     cfg.Logger,
		now:     cfg.Now,
	}
	if t.log == nil {
		t.log = tiercache.NopLogger{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	p, err := eviction.New(cfg.Policy)
	if err != nil {
		t.log.Warn("memory tier: unknown eviction policy, using LRU", tiercache.Fields{"policy": string(cfg.Policy)})
		p, _ = eviction.New(eviction.LRU)
	}
	t.policy = p
	return t
}

func (t *Tier[V]) SupportsPinning() bool { return true }

func (t *Tier[V]) ReadLock(key string) func()  { return t.locks.ReadLock(key) }
func (t *Tier[V]) WriteLock(key string) func() { return t.locks.WriteLock(key) }
func (t *Tier[V]) ReadLockAll() func()         { return t.locks.ReadLockAll() }
func (t *Tier[V]) WriteLockAll() func()        { return t.locks.WriteLockAll() }

func (t *Tier[V]) TryWriteLock(key string) (func(), bool) { return t.locks.TryWriteLock(key) }

// lookup returns the live entry for key, dropping it if expired.
// touch records the access. Caller holds t.mu.
func (t *Tier[V]) lookup(key string, touch bool) (tiercache.Entry[V], bool) {
	e, ok := t.entries[key]
	if !ok {
		if touch {
			t.stats.Misses++
		}
		return e, false
	}
	now := t.now()
	if e.Expired(now) {
		t.drop(key)
		t.stats.Expirations++
		if touch {
			t.stats.Misses++
		}
		return tiercache.Entry[V]{}, false
	}
	if touch {
		e.LastAccessedAt = now
		t.entries[key] = e
		t.policy.Touch(key)
		t.stats.Hits++
	}
	return e, true
}

// store inserts or overwrites e, evicting unpinned entries to stay within
// MaxEntries. Caller holds t.mu.
func (t *Tier[V]) store(e tiercache.Entry[V]) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now()
	}
	if _, ok := t.entries[e.Key]; ok {
		t.drop(e.Key)
	} else if !e.Pinned {
		t.makeRoom()
	}
	t.entries[e.Key] = e
	if e.Pinned {
		t.pinned++
	} else {
		t.policy.Add(e.Key)
	}
}

func (t *Tier[V]) makeRoom() {
	if t.max <= 0 {
		return
	}
	for len(t.entries) >= t.max {
		victim, ok := t.policy.Victim()
		if !ok {
			return // only pinned entries left
		}
		delete(t.entries, victim)
		t.stats.Evictions++
		t.log.Debug("memory tier evicted entry", tiercache.Fields{"key": victim, "policy": t.policy.Kind().String()})
	}
}

// drop removes key from every index. Caller holds t.mu.
func (t *Tier[V]) drop(key string) {
	e, ok := t.entries[key]
	if !ok {
		return
	}
	delete(t.entries, key)
	if e.Pinned {
		t.pinned--
	} else {
		t.policy.Remove(key)
	}
}

func (t *Tier[V]) begin() (func(), error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, tiercache.ErrDisposed
	}
	return t.mu.Unlock, nil
}

func emptyKey(op string) error {
	return fmt.Errorf("%w: memory tier %s: empty key", tiercache.ErrInvalidArgument, op)
}

func (t *Tier[V]) Get(_ context.Context, key string) (tiercache.Entry[V], bool, error) {
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()
	e, ok := t.lookup(key, true)
	return e, ok, nil
}

func (t *Tier[V]) GetQuiet(_ context.Context, key string) (tiercache.Entry[V], bool, error) {
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()
	e, ok := t.lookup(key, false)
	return e, ok, nil
}

func (t *Tier[V]) Put(ctx context.Context, e tiercache.Entry[V]) (bool, error) {
	return t.PutWithWriter(ctx, e, nil)
}

// PutWithWriter calls w before storing. w must not call back into t.
func (t *Tier[V]) PutWithWriter(ctx context.Context, e tiercache.Entry[V], w tiercache.Writer[V]) (bool, error) {
	if e.Key == "" {
		return false, emptyKey("put")
	}
	unlock, err := t.begin()
	if err != nil {
		return false, err
	}
	defer unlock()

	if w != nil {
		if err := w.OnPut(ctx, e); err != nil {
			return false, err
		}
	}
	_, existed := t.lookup(e.Key, false)
	t.store(e)
	return !existed, nil
}

func (t *Tier[V]) Remove(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	return t.RemoveWithWriter(ctx, key, nil)
}

// RemoveWithWriter calls w with the current entry before removing it.
func (t *Tier[V]) RemoveWithWriter(ctx context.Context, key string, w tiercache.Writer[V]) (tiercache.Entry[V], bool, error) {
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()

	old, ok := t.lookup(key, false)
	if w != nil {
		if err := w.OnRemove(ctx, key, old, ok); err != nil {
			return tiercache.Entry[V]{}, false, err
		}
	}
	if !ok {
		return tiercache.Entry[V]{}, false, nil
	}
	t.drop(key)
	return old, true, nil
}

func (t *Tier[V]) PutIfAbsent(_ context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	if e.Key == "" {
		return tiercache.Entry[V]{}, false, emptyKey("put_if_absent")
	}
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()

	if cur, ok := t.lookup(e.Key, false); ok {
		return cur, true, nil
	}
	t.store(e)
	return tiercache.Entry[V]{}, false, nil
}

func (t *Tier[V]) RemoveIfEqual(_ context.Context, e tiercache.Entry[V], eq tiercache.Comparator[V]) (tiercache.Entry[V], bool, error) {
	if e.Key == "" {
		return tiercache.Entry[V]{}, false, emptyKey("remove_if_equal")
	}
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()

	cur, ok := t.lookup(e.Key, false)
	if !ok || !eq(e, cur) {
		return tiercache.Entry[V]{}, false, nil
	}
	t.drop(e.Key)
	return cur, true, nil
}

func (t *Tier[V]) ReplaceIfEqual(_ context.Context, old, repl tiercache.Entry[V], eq tiercache.Comparator[V]) (bool, error) {
	if repl.Key == "" {
		return false, emptyKey("replace_if_equal")
	}
	unlock, err := t.begin()
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, ok := t.lookup(repl.Key, false)
	if !ok || !eq(old, cur) {
		return false, nil
	}
	t.store(repl)
	return true, nil
}

func (t *Tier[V]) Replace(_ context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	if e.Key == "" {
		return tiercache.Entry[V]{}, false, emptyKey("replace")
	}
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer unlock()

	cur, ok := t.lookup(e.Key, false)
	if !ok {
		return tiercache.Entry[V]{}, false, nil
	}
	t.store(e)
	return cur, true, nil
}

func (t *Tier[V]) ContainsKey(_ context.Context, key string) (bool, error) {
	unlock, err := t.begin()
	if err != nil {
		return false, err
	}
	defer unlock()
	_, ok := t.lookup(key, false)
	return ok, nil
}

func (t *Tier[V]) ContainsKeyInMemory(ctx context.Context, key string) (bool, error) {
	return t.ContainsKey(ctx, key)
}

func (t *Tier[V]) ContainsKeyOnDisk(context.Context, string) (bool, error)  { return false, nil }
func (t *Tier[V]) ContainsKeyOffHeap(context.Context, string) (bool, error) { return false, nil }

// Keys returns the live keys in sorted order.
func (t *Tier[V]) Keys(context.Context) ([]string, error) {
	unlock, err := t.begin()
	if err != nil {
		return nil, err
	}
	defer unlock()
	t.sweep()
	return slices.Sorted(maps.Keys(t.entries)), nil
}

func (t *Tier[V]) RemoveAll(context.Context) error {
	unlock, err := t.begin()
	if err != nil {
		return err
	}
	defer unlock()
	t.reset()
	return nil
}

func (t *Tier[V]) reset() {
	t.entries = make(map[string]tiercache.Entry[V])
	t.policy, _ = eviction.New(t.policy.Kind())
	t.pinned = 0
}

// Dispose drops every entry; later calls on t fail with ErrDisposed.
func (t *Tier[V]) Dispose(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.reset()
	}
	return nil
}

func (t *Tier[V]) Sizes(context.Context) (tiercache.Sizes, error) {
	unlock, err := t.begin()
	if err != nil {
		return tiercache.Sizes{}, err
	}
	defer unlock()
	return tiercache.Sizes{
		Logical:  len(t.entries),
		InMemory: len(t.entries),
		Pinned:   t.pinned,
	}, nil
}

func (t *Tier[V]) ExpireElements(context.Context) error {
	unlock, err := t.begin()
	if err != nil {
		return err
	}
	defer unlock()
	t.sweep()
	return nil
}

func (t *Tier[V]) sweep() {
	now := t.now()
	for k, e := range t.entries {
		if e.Expired(now) {
			t.drop(k)
			t.stats.Expirations++
		}
	}
}

func (t *Tier[V]) Flush(context.Context) error { return nil }
func (t *Tier[V]) BufferFull() bool            { return false }

// Full reports whether an insert of a new key would evict.
func (t *Tier[V]) Full() bool {
	if t.max <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) >= t.max
}

func (t *Tier[V]) EvictionPolicy() eviction.Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.policy.Kind()
}

// SetEvictionPolicy swaps the eviction order. Unpinned keys are re-tracked
// oldest access first, so recency carries over to LRU and FIFO.
func (t *Tier[V]) SetEvictionPolicy(k eviction.Kind) error {
	p, err := eviction.New(k)
	if err != nil {
		return err
	}
	unlock, err := t.begin()
	if err != nil {
		return err
	}
	defer unlock()

	live := make([]tiercache.Entry[V], 0, len(t.entries))
	for _, e := range t.entries {
		if !e.Pinned {
			live = append(live, e)
		}
	}
	slices.SortFunc(live, func(a, b tiercache.Entry[V]) int {
		return cmp.Compare(accessed(a).UnixNano(), accessed(b).UnixNano())
	})
	for _, e := range live {
		p.Add(e.Key)
	}
	t.policy = p
	return nil
}

func accessed[V any](e tiercache.Entry[V]) time.Time {
	if e.LastAccessedAt.IsZero() {
		return e.CreatedAt
	}
	return e.LastAccessedAt
}

func (t *Tier[V]) InternalContext() any { return t.locks }

// Monitor returns a Stats snapshot.
func (t *Tier[V]) Monitor() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
