// Package kv adapts a byte Store into a tiercache.Tier.
//
// Entries are framed with internal/wire so pin flags and expiry metadata
// survive the trip through the store. Compound operations (PutIfAbsent,
// Replace, ...) are serialized per key inside this process, which is enough
// for in-process stores such as ristretto and bigcache.
package kv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/stripe"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

// ErrRejected is returned when the store refuses a pinned entry. Unpinned
// rejections behave like an immediate eviction and are not errors.
var ErrRejected = errors.New("kv: store rejected pinned entry")

// Layer is the storage layer a store's entries count towards in Sizes.
type Layer int

const (
	InMemory Layer = iota
	OffHeap
	OnDisk
	Clustered
)

type Config[V any] struct {
	Store Store
	Codec codec.Codec[V]
	Layer Layer

	MaxEntries int           // Full() threshold; <= 0 => never full
	Policy     eviction.Kind // the store's own eviction order, reported as-is
	Stripes    int

	// Cost assigns a store cost to an encoded entry. nil => encoded size.
	Cost    func(e tiercache.Entry[V], encoded int) int64
	Monitor func() any
	Logger  tiercache.Logger
	Now     func() time.Time
}

type Tier[V any] struct {
	store  Store
	codec  codec.Codec[V]
	layer  Layer
	max    int
	policy eviction.Kind
	cost   func(tiercache.Entry[V], int) int64
	mon    func() any
	log    tiercache.Logger
	now    func() time.Time

	mu     *stripe.Locks // serializes compound ops per key
	locks  *stripe.Locks // lock domain handed to composers
	closed atomic.Bool
}

var _ tiercache.Tier[struct{}] = (*Tier[struct{}])(nil)

func New[V any](cfg Config[V]) (*Tier[V], error) {
	if cfg.Store == nil {
		return nil, errors.New("kv: store is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("kv: codec is required")
	}
	t := &Tier[V]{
		store:  cfg.Store,
		codec:  cfg.Codec,
		layer:  cfg.Layer,
		max:    cfg.MaxEntries,
		policy: cfg.Policy,
		cost:   cfg.Cost,
		mon:    cfg.Monitor,
		log:    cfg.Logger,
		now:    cfg.Now,
		mu:     stripe.New(cfg.Stripes),
		locks:  stripe.New(cfg.Stripes),
	}
	if t.log == nil {
		t.log = tiercache.NopLogger{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.cost == nil {
		t.cost = func(_ tiercache.Entry[V], n int) int64 { return int64(n) }
	}
	return t, nil
}

// SupportsPinning is false: the stores evict on their own.
func (t *Tier[V]) SupportsPinning() bool { return false }

func (t *Tier[V]) ReadLock(key string) func()  { return t.locks.ReadLock(key) }
func (t *Tier[V]) WriteLock(key string) func() { return t.locks.WriteLock(key) }
func (t *Tier[V]) ReadLockAll() func()         { return t.locks.ReadLockAll() }
func (t *Tier[V]) WriteLockAll() func()        { return t.locks.WriteLockAll() }

func (t *Tier[V]) TryWriteLock(key string) (func(), bool) { return t.locks.TryWriteLock(key) }

func (t *Tier[V]) alive() error {
	if t.closed.Load() {
		return tiercache.ErrDisposed
	}
	return nil
}

func emptyKey(op string) error {
	return fmt.Errorf("%w: kv tier %s: empty key", tiercache.ErrInvalidArgument, op)
}

// load reads and decodes key. Corrupt and expired entries are deleted and
// reported as a miss. Caller holds the key's stripe.
func (t *Tier[V]) load(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	b, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := wire.Unmarshal(t.codec, b)
	if err != nil || e.Key != key {
		// self-heal: drop unexpected entry shape
		t.log.Warn("kv tier dropped corrupt entry", tiercache.Fields{"key": key, "err": err})
		return zero, false, t.store.Del(ctx, key)
	}
	if e.Expired(t.now()) {
		return zero, false, t.store.Del(ctx, key)
	}
	return e, true, nil
}

// save encodes and stores e. An entry already expired is not written.
// Caller holds the key's stripe.
func (t *Tier[V]) save(ctx context.Context, e tiercache.Entry[V]) error {
	now := t.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.Expired(now) {
		return t.store.Del(ctx, e.Key)
	}
	b, err := wire.Marshal(t.codec, e)
	if err != nil {
		return err
	}
	ok, err := t.store.Set(ctx, e.Key, b, t.cost(e, len(b)), storeTTL(e, now))
	if err != nil {
		return err
	}
	if !ok {
		t.log.Debug("kv tier store rejected entry", tiercache.Fields{"key": e.Key, "size": len(b), "pinned": e.Pinned})
		if e.Pinned {
			return fmt.Errorf("%w: %q", ErrRejected, e.Key)
		}
	}
	return nil
}

// storeTTL is how long the store may keep e. 0 => no expiry.
func storeTTL[V any](e tiercache.Entry[V], now time.Time) time.Duration {
	d, ok := e.ExpiresIn(now)
	if !ok {
		return 0
	}
	return max(d, time.Millisecond)
}

func (t *Tier[V]) Get(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	if err := t.alive(); err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer t.mu.WriteLock(key)()

	e, ok, err := t.load(ctx, key)
	if err != nil || !ok {
		return tiercache.Entry[V]{}, false, err
	}
	e.LastAccessedAt = t.now()
	if e.TTI > 0 {
		// idle clock only moves if the store sees the new access time
		if err := t.save(ctx, e); err != nil {
			return tiercache.Entry[V]{}, false, err
		}
	}
	return e, true, nil
}

func (t *Tier[V]) GetQuiet(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	if err := t.alive(); err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	defer t.mu.WriteLock(key)()
	return t.load(ctx, key)
}

func (t *Tier[V]) Put(ctx context.Context, e tiercache.Entry[V]) (bool, error) {
	return t.PutWithWriter(ctx, e, nil)
}

func (t *Tier[V]) PutWithWriter(ctx context.Context, e tiercache.Entry[V], w tiercache.Writer[V]) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	if e.Key == "" {
		return false, emptyKey("put")
	}
	defer t.mu.WriteLock(e.Key)()

	if w != nil {
		if err := w.OnPut(ctx, e); err != nil {
			return false, err
		}
	}
	_, existed, err := t.load(ctx, e.Key)
	if err != nil {
		return false, err
	}
	if err := t.save(ctx, e); err != nil {
		return false, err
	}
	return !existed, nil
}

func (t *Tier[V]) Remove(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	return t.RemoveWithWriter(ctx, key, nil)
}

func (t *Tier[V]) RemoveWithWriter(ctx context.Context, key string, w tiercache.Writer[V]) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	defer t.mu.WriteLock(key)()

	old, ok, err := t.load(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if w != nil {
		if err := w.OnRemove(ctx, key, old, ok); err != nil {
			return zero, false, err
		}
	}
	if !ok {
		return zero, false, nil
	}
	if err := t.store.Del(ctx, key); err != nil {
		return zero, false, err
	}
	return old, true, nil
}

func (t *Tier[V]) PutIfAbsent(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, emptyKey("put_if_absent")
	}
	defer t.mu.WriteLock(e.Key)()

	cur, ok, err := t.load(ctx, e.Key)
	if err != nil {
		return zero, false, err
	}
	if ok {
		return cur, true, nil
	}
	return zero, false, t.save(ctx, e)
}

func (t *Tier[V]) RemoveIfEqual(ctx context.Context, e tiercache.Entry[V], eq tiercache.Comparator[V]) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, emptyKey("remove_if_equal")
	}
	defer t.mu.WriteLock(e.Key)()

	cur, ok, err := t.load(ctx, e.Key)
	if err != nil || !ok || !eq(e, cur) {
		return zero, false, err
	}
	if err := t.store.Del(ctx, e.Key); err != nil {
		return zero, false, err
	}
	return cur, true, nil
}

func (t *Tier[V]) ReplaceIfEqual(ctx context.Context, old, repl tiercache.Entry[V], eq tiercache.Comparator[V]) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	if repl.Key == "" {
		return false, emptyKey("replace_if_equal")
	}
	defer t.mu.WriteLock(repl.Key)()

	cur, ok, err := t.load(ctx, repl.Key)
	if err != nil || !ok || !eq(old, cur) {
		return false, err
	}
	return true, t.save(ctx, repl)
}

func (t *Tier[V]) Replace(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, emptyKey("replace")
	}
	defer t.mu.WriteLock(e.Key)()

	cur, ok, err := t.load(ctx, e.Key)
	if err != nil || !ok {
		return zero, false, err
	}
	if err := t.save(ctx, e); err != nil {
		return zero, false, err
	}
	return cur, true, nil
}

func (t *Tier[V]) ContainsKey(ctx context.Context, key string) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	defer t.mu.WriteLock(key)()
	_, ok, err := t.load(ctx, key)
	return ok, err
}

func (t *Tier[V]) containsIn(ctx context.Context, key string, l Layer) (bool, error) {
	if t.layer != l {
		return false, nil
	}
	return t.ContainsKey(ctx, key)
}

func (t *Tier[V]) ContainsKeyInMemory(ctx context.Context, key string) (bool, error) {
	return t.containsIn(ctx, key, InMemory)
}

func (t *Tier[V]) ContainsKeyOffHeap(ctx context.Context, key string) (bool, error) {
	return t.containsIn(ctx, key, OffHeap)
}

func (t *Tier[V]) ContainsKeyOnDisk(ctx context.Context, key string) (bool, error) {
	return t.containsIn(ctx, key, OnDisk)
}

// scan visits every live entry under the all-keys lock.
func (t *Tier[V]) scan(ctx context.Context, fn func(tiercache.Entry[V])) error {
	keys, err := t.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		e, ok, err := t.load(ctx, k)
		if err != nil {
			return err
		}
		if ok {
			fn(e)
		}
	}
	return nil
}

// Keys returns the live keys in sorted order.
func (t *Tier[V]) Keys(ctx context.Context) ([]string, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	defer t.mu.WriteLockAll()()

	var out []string
	err := t.scan(ctx, func(e tiercache.Entry[V]) { out = append(out, e.Key) })
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

func (t *Tier[V]) RemoveAll(ctx context.Context) error {
	if err := t.alive(); err != nil {
		return err
	}
	defer t.mu.WriteLockAll()()
	return t.store.Clear(ctx)
}

// Dispose closes the store once; later calls on t fail with ErrDisposed.
func (t *Tier[V]) Dispose(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer t.mu.WriteLockAll()()
	return t.store.Close(ctx)
}

// Sizes walks the store to count pinned entries.
func (t *Tier[V]) Sizes(ctx context.Context) (tiercache.Sizes, error) {
	if err := t.alive(); err != nil {
		return tiercache.Sizes{}, err
	}
	defer t.mu.WriteLockAll()()

	var n, pinned int
	err := t.scan(ctx, func(e tiercache.Entry[V]) {
		n++
		if e.Pinned {
			pinned++
		}
	})
	if err != nil {
		return tiercache.Sizes{}, err
	}

	var bytes int64
	if bs, ok := t.store.(ByteSizer); ok {
		bytes = bs.Bytes()
	}
	s := tiercache.Sizes{Logical: n, Pinned: pinned}
	switch t.layer {
	case InMemory:
		s.InMemory, s.InMemoryBytes = n, bytes
	case OffHeap:
		s.OffHeap, s.OffHeapBytes = n, bytes
	case OnDisk:
		s.OnDisk, s.OnDiskBytes = n, bytes
	case Clustered:
		s.Clustered, s.ClusteredBytes = n, bytes
	}
	return s, nil
}

// ExpireElements drops expired entries the store still holds.
func (t *Tier[V]) ExpireElements(ctx context.Context) error {
	if err := t.alive(); err != nil {
		return err
	}
	defer t.mu.WriteLockAll()()
	return t.scan(ctx, func(tiercache.Entry[V]) {})
}

func (t *Tier[V]) Flush(context.Context) error { return nil }
func (t *Tier[V]) BufferFull() bool            { return false }

func (t *Tier[V]) Full() bool {
	if t.max <= 0 || t.closed.Load() {
		return false
	}
	n, err := t.store.Len(context.Background())
	if err != nil {
		t.log.Warn("kv tier length unavailable", tiercache.Fields{"err": err})
		return false
	}
	return n >= t.max
}

func (t *Tier[V]) EvictionPolicy() eviction.Kind { return t.policy }

// SetEvictionPolicy accepts only the store's own order.
func (t *Tier[V]) SetEvictionPolicy(k eviction.Kind) error {
	if k == t.policy {
		return nil
	}
	return fmt.Errorf("%w: store evicts by %s, requested %s", tiercache.ErrUnsupported, t.policy, k)
}

func (t *Tier[V]) InternalContext() any { return t.locks }

func (t *Tier[V]) Monitor() any {
	if t.mon == nil {
		return nil
	}
	return t.mon()
}
