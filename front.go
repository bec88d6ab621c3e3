package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/stripe"
)

// FrontTier presents an accelerator tier and an authority tier as one Tier.
//
// The accelerator caches the authority: every unpinned entry it holds is
// also held by the authority. When the authority cannot pin, pinned entries
// live only in the accelerator and the composer removes them from the
// authority. Key-scoped operations run under the key's lock from the
// configured LockDomain; whole-tier operations take every lock.
//
// Cross-tier writes are best effort. If the second tier of a composed
// mutation fails, the first tier keeps its change and the error is returned.
type FrontTier[V any] struct {
	name string
	acc  Tier[V]
	auth Tier[V]

	iso             Isolation[V]
	authorityPins   bool
	acceleratorPins bool
	alwaysAdmit     bool

	locks LockDomain    // guards composed operations
	own   *stripe.Locks // handed out when this composer is itself a tier

	log   Logger
	hooks Hooks
	loads singleflight.Group // GetOrLoad

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeErr  error
}

var (
	_ Tier[struct{}] = (*FrontTier[struct{}])(nil)
	_ Pinner         = (*FrontTier[struct{}])(nil)
	_ TryLocker      = (*FrontTier[struct{}])(nil)
)

func newFrontTier[V any](acc, auth Tier[V], opts Options[V]) (*FrontTier[V], error) {
	if acc == nil {
		return nil, fmt.Errorf("tiercache: accelerator tier is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("tiercache: authority tier is required")
	}
	iso, err := NewIsolation(opts.CopyOnRead, opts.CopyOnWrite, opts.Copier)
	if err != nil {
		return nil, err
	}

	f := &FrontTier[V]{
		acc:           acc,
		auth:          auth,
		iso:           iso,
		authorityPins: opts.AuthorityHandlesPinning,
		alwaysAdmit:   opts.AlwaysAdmit,
		own:           stripe.New(stripe.DefaultStripes),
	}
	if p, ok := acc.(Pinner); ok {
		f.acceleratorPins = p.SupportsPinning()
	}

	// defaults
	f.name = coalesce(opts.Name, uuid.NewString())
	f.log = With(coalesce[Logger](opts.Logger, NopLogger{}), Fields{"name": f.name})
	f.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	f.locks = coalesce[LockDomain](opts.Locks, auth)

	f.log.Debug("front tier composed", Fields{
		"authorityPins":   f.authorityPins,
		"acceleratorPins": f.acceleratorPins,
		"alwaysAdmit":     f.alwaysAdmit,
		"valueIsolation":  f.iso.Active(),
		"acceleratorKind": fmt.Sprintf("%T", acc),
		"authorityKind":   fmt.Sprintf("%T", auth),
	})
	return f, nil
}

// Name identifies this composer in logs.
func (f *FrontTier[V]) Name() string { return f.name }

// Status reports whether Dispose has been called.
func (f *FrontTier[V]) Status() Status {
	if f.disposed.Load() {
		return StatusShutdown
	}
	return StatusAlive
}

// SupportsPinning reports whether either tier can retain pinned entries.
// When neither can, pinned writes fail with ErrPinningUnsupported.
func (f *FrontTier[V]) SupportsPinning() bool { return f.authorityPins || f.acceleratorPins }

func (f *FrontTier[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	return f.get(ctx, "get", key, f.acc.Get, f.auth.Get)
}

func (f *FrontTier[V]) GetQuiet(ctx context.Context, key string) (Entry[V], bool, error) {
	return f.get(ctx, "get_quiet", key, f.acc.GetQuiet, f.auth.GetQuiet)
}

type lookupFunc[V any] func(context.Context, string) (Entry[V], bool, error)

func (f *FrontTier[V]) get(ctx context.Context, op, key string, accGet, authGet lookupFunc[V]) (Entry[V], bool, error) {
	var zero Entry[V]
	if err := f.alive(); err != nil {
		return zero, false, err
	}
	if key == "" {
		return zero, false, nil
	}
	defer f.locks.ReadLock(key)()

	e, ok, err := accGet(ctx, key)
	if err != nil {
		return zero, false, f.fail(op, TierAccelerator, key, err)
	}
	if !ok {
		e, ok, err = authGet(ctx, key)
		if err != nil {
			return zero, false, f.fail(op, TierAuthority, key, err)
		}
		if !ok {
			return zero, false, nil
		}
		// promotion is unconditional; the accelerator makes room by its own policy
		if _, err := f.acc.Put(ctx, e); err != nil {
			return zero, false, f.fail(op, TierAccelerator, key, err)
		}
		f.hooks.Promoted(key)
		f.log.Debug("promoted authority hit", Fields{"key": key})
	}
	return f.read(op, e)
}

func (f *FrontTier[V]) Put(ctx context.Context, e Entry[V]) (bool, error) {
	return f.put(ctx, "put", e, nil)
}

// PutWithWriter is Put with w invoked before the authority stores the entry
// (for pinned entries the accelerator write is routed through w instead).
func (f *FrontTier[V]) PutWithWriter(ctx context.Context, e Entry[V], w Writer[V]) (bool, error) {
	return f.put(ctx, "put_with_writer", e, w)
}

func (f *FrontTier[V]) put(ctx context.Context, op string, e Entry[V], w Writer[V]) (bool, error) {
	if err := f.alive(); err != nil {
		return false, err
	}
	if e.Key == "" {
		return false, invalidArg(op, "empty key")
	}
	if err := f.pinnable(op, e); err != nil {
		return false, err
	}
	key := e.Key
	defer f.locks.WriteLock(key)()

	cp, err := f.write(op, e)
	if err != nil {
		return false, err
	}

	if cp.Pinned && !f.authorityPins {
		var inserted bool
		if w != nil {
			inserted, err = f.acc.PutWithWriter(ctx, cp, w)
		} else {
			inserted, err = f.acc.Put(ctx, cp)
		}
		if err != nil {
			return false, f.fail(op, TierAccelerator, key, err)
		}
		if err := f.unpinFromAuthority(ctx, op, key); err != nil {
			return false, err
		}
		return inserted, nil
	}

	admit := !f.acceleratorFull()
	if !admit {
		// an overwrite may always take the slot its old value frees
		_, existed, err := f.acc.Remove(ctx, key)
		if err != nil {
			return false, f.fail(op, TierAccelerator, key, err)
		}
		admit = existed
	}

	if w != nil {
		// writer fires inside the authority, before anything is stored
		put, err := f.auth.PutWithWriter(ctx, cp, w)
		if err != nil {
			return false, f.fail(op, TierAuthority, key, err)
		}
		if err := f.admit(ctx, op, cp, admit); err != nil {
			return false, err
		}
		return put, nil
	}

	if err := f.admit(ctx, op, cp, admit); err != nil {
		return false, err
	}
	put, err := f.auth.Put(ctx, cp)
	if err != nil {
		return false, f.fail(op, TierAuthority, key, err)
	}
	return put, nil
}

func (f *FrontTier[V]) admit(ctx context.Context, op string, cp Entry[V], admit bool) error {
	if !admit {
		f.hooks.AdmissionRejected(cp.Key)
		f.log.Debug("accelerator full; entry not admitted", Fields{"key": cp.Key})
		return nil
	}
	if _, err := f.acc.Put(ctx, cp); err != nil {
		return f.fail(op, TierAccelerator, cp.Key, err)
	}
	return nil
}

func (f *FrontTier[V]) Remove(ctx context.Context, key string) (Entry[V], bool, error) {
	return f.remove(ctx, "remove", key, nil)
}

func (f *FrontTier[V]) RemoveWithWriter(ctx context.Context, key string, w Writer[V]) (Entry[V], bool, error) {
	return f.remove(ctx, "remove_with_writer", key, w)
}

func (f *FrontTier[V]) remove(ctx context.Context, op, key string, w Writer[V]) (Entry[V], bool, error) {
	var zero Entry[V]
	if err := f.alive(); err != nil {
		return zero, false, err
	}
	if key == "" {
		return zero, false, nil
	}
	defer f.locks.WriteLock(key)()

	if _, _, err := f.acc.Remove(ctx, key); err != nil {
		return zero, false, f.fail(op, TierAccelerator, key, err)
	}

	var (
		old Entry[V]
		ok  bool
		err error
	)
	if w != nil {
		old, ok, err = f.auth.RemoveWithWriter(ctx, key, w)
	} else {
		old, ok, err = f.auth.Remove(ctx, key)
	}
	if err != nil {
		return zero, false, f.fail(op, TierAuthority, key, err)
	}
	if !ok {
		return zero, false, nil
	}
	return f.read(op, old)
}

// PutIfAbsent stores e only when no value exists for its key and returns
// the prior value otherwise.
//
// A pinned entry whose key the authority already owns is refused without a
// value: the result is (zero, true, nil). An unpinned entry only consults
// the authority, so it displaces a key pinned only in the accelerator and
// reports it absent.
func (f *FrontTier[V]) PutIfAbsent(ctx context.Context, e Entry[V]) (Entry[V], bool, error) {
	const op = "put_if_absent"
	var zero Entry[V]
	if err := f.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, invalidArg(op, "empty key")
	}
	if err := f.pinnable(op, e); err != nil {
		return zero, false, err
	}
	key := e.Key
	defer f.locks.WriteLock(key)()

	cp, err := f.write(op, e)
	if err != nil {
		return zero, false, err
	}

	if cp.Pinned && !f.authorityPins {
		owned, err := f.auth.ContainsKey(ctx, key)
		if err != nil {
			return zero, false, f.fail(op, TierAuthority, key, err)
		}
		if owned {
			return zero, true, nil
		}
		prior, existed, err := f.acc.PutIfAbsent(ctx, cp)
		if err != nil {
			return zero, false, f.fail(op, TierAccelerator, key, err)
		}
		if !existed {
			return zero, false, nil
		}
		if err := f.unpinFromAuthority(ctx, op, key); err != nil {
			return zero, false, err
		}
		out, _, err := f.read(op, prior)
		return out, true, err
	}

	prior, existed, err := f.auth.PutIfAbsent(ctx, cp)
	if err != nil {
		return zero, false, f.fail(op, TierAuthority, key, err)
	}
	if existed {
		out, _, err := f.read(op, prior)
		return out, true, err
	}
	if !f.acceleratorFull() {
		if _, err := f.acc.Put(ctx, cp); err != nil {
			return zero, false, f.fail(op, TierAccelerator, key, err)
		}
		return zero, false, nil
	}
	// not admitted: make sure no stale shadow copy survives
	if _, _, err := f.acc.Remove(ctx, key); err != nil {
		return zero, false, f.fail(op, TierAccelerator, key, err)
	}
	f.hooks.AdmissionRejected(key)
	return zero, false, nil
}

// RemoveIfEqual removes the key from the authority iff cmp(e, current) holds.
// The accelerator copy is dropped either way.
func (f *FrontTier[V]) RemoveIfEqual(ctx context.Context, e Entry[V], cmp Comparator[V]) (Entry[V], bool, error) {
	const op = "remove_if_equal"
	var zero Entry[V]
	if err := f.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, invalidArg(op, "empty key")
	}
	if cmp == nil {
		return zero, false, invalidArg(op, "nil comparator")
	}
	key := e.Key
	defer f.locks.WriteLock(key)()

	if _, _, err := f.acc.Remove(ctx, key); err != nil {
		return zero, false, f.fail(op, TierAccelerator, key, err)
	}
	old, ok, err := f.auth.RemoveIfEqual(ctx, e, cmp)
	if err != nil {
		return zero, false, f.fail(op, TierAuthority, key, err)
	}
	if !ok {
		return zero, false, nil
	}
	return f.read(op, old)
}

// ReplaceIfEqual swaps in repl iff the current value equals old under cmp.
func (f *FrontTier[V]) ReplaceIfEqual(ctx context.Context, old, repl Entry[V], cmp Comparator[V]) (bool, error) {
	const op = "replace_if_equal"
	if err := f.alive(); err != nil {
		return false, err
	}
	switch {
	case old.Key == "" || repl.Key == "":
		return false, invalidArg(op, "empty key")
	case old.Key != repl.Key:
		return false, invalidArg(op, fmt.Sprintf("key mismatch %q != %q", old.Key, repl.Key))
	case cmp == nil:
		return false, invalidArg(op, "nil comparator")
	}
	if err := f.pinnable(op, repl); err != nil {
		return false, err
	}
	key := repl.Key
	defer f.locks.WriteLock(key)()

	cp, err := f.write(op, repl)
	if err != nil {
		return false, err
	}

	if cp.Pinned && !f.authorityPins {
		if ok, err := f.reseed(ctx, op, key); err != nil || !ok {
			return false, err
		}
		swapped, err := f.acc.ReplaceIfEqual(ctx, old, cp, cmp)
		if err != nil {
			return false, f.fail(op, TierAccelerator, key, err)
		}
		if swapped {
			if err := f.unpinFromAuthority(ctx, op, key); err != nil {
				return false, err
			}
		}
		return swapped, nil
	}

	if _, _, err := f.acc.Remove(ctx, key); err != nil {
		return false, f.fail(op, TierAccelerator, key, err)
	}
	swapped, err := f.auth.ReplaceIfEqual(ctx, old, cp, cmp)
	if err != nil {
		return false, f.fail(op, TierAuthority, key, err)
	}
	return swapped, nil
}

// Replace stores e only when a value already exists and returns that value.
func (f *FrontTier[V]) Replace(ctx context.Context, e Entry[V]) (Entry[V], bool, error) {
	const op = "replace"
	var zero Entry[V]
	if err := f.alive(); err != nil {
		return zero, false, err
	}
	if e.Key == "" {
		return zero, false, invalidArg(op, "empty key")
	}
	if err := f.pinnable(op, e); err != nil {
		return zero, false, err
	}
	key := e.Key
	defer f.locks.WriteLock(key)()

	cp, err := f.write(op, e)
	if err != nil {
		return zero, false, err
	}

	var (
		prior    Entry[V]
		replaced bool
	)
	if cp.Pinned && !f.authorityPins {
		if ok, err := f.reseed(ctx, op, key); err != nil || !ok {
			return zero, false, err
		}
		prior, replaced, err = f.acc.Replace(ctx, cp)
		if err != nil {
			return zero, false, f.fail(op, TierAccelerator, key, err)
		}
		if replaced {
			if err := f.unpinFromAuthority(ctx, op, key); err != nil {
				return zero, false, err
			}
		}
	} else {
		if _, _, err := f.acc.Remove(ctx, key); err != nil {
			return zero, false, f.fail(op, TierAccelerator, key, err)
		}
		prior, replaced, err = f.auth.Replace(ctx, cp)
		if err != nil {
			return zero, false, f.fail(op, TierAuthority, key, err)
		}
	}
	if !replaced {
		return zero, false, nil
	}
	return f.read(op, prior)
}

// reseed copies the authority's current entry into the accelerator so a
// pinned replace can run against it. ok=false when the authority has none.
func (f *FrontTier[V]) reseed(ctx context.Context, op, key string) (bool, error) {
	cur, ok, err := f.auth.GetQuiet(ctx, key)
	if err != nil {
		return false, f.fail(op, TierAuthority, key, err)
	}
	if !ok {
		return false, nil
	}
	if _, err := f.acc.Put(ctx, cur); err != nil {
		return false, f.fail(op, TierAccelerator, key, err)
	}
	return true, nil
}

// pinnable refuses a pinned entry that only the accelerator would hold when
// the accelerator cannot keep it from its own eviction.
func (f *FrontTier[V]) pinnable(op string, e Entry[V]) error {
	if !e.Pinned || f.authorityPins || f.acceleratorPins {
		return nil
	}
	return fmt.Errorf("%w: %s %q: accelerator %T", ErrPinningUnsupported, op, e.Key, f.acc)
}

func (f *FrontTier[V]) unpinFromAuthority(ctx context.Context, op, key string) error {
	if _, _, err := f.auth.Remove(ctx, key); err != nil {
		return f.fail(op, TierAuthority, key, err)
	}
	f.hooks.PinEnforced(key)
	f.log.Debug("pinned entry kept out of authority", Fields{"key": key})
	return nil
}

func (f *FrontTier[V]) ContainsKey(ctx context.Context, key string) (bool, error) {
	return f.contains(ctx, "contains_key", key, f.acc.ContainsKey, f.auth.ContainsKey)
}

func (f *FrontTier[V]) ContainsKeyOnDisk(ctx context.Context, key string) (bool, error) {
	return f.contains(ctx, "contains_key_on_disk", key, f.acc.ContainsKeyOnDisk, f.auth.ContainsKeyOnDisk)
}

func (f *FrontTier[V]) ContainsKeyOffHeap(ctx context.Context, key string) (bool, error) {
	return f.contains(ctx, "contains_key_off_heap", key, f.acc.ContainsKeyOffHeap, f.auth.ContainsKeyOffHeap)
}

func (f *FrontTier[V]) ContainsKeyInMemory(ctx context.Context, key string) (bool, error) {
	return f.contains(ctx, "contains_key_in_memory", key, f.acc.ContainsKeyInMemory, f.auth.ContainsKeyInMemory)
}

type containsFunc func(context.Context, string) (bool, error)

func (f *FrontTier[V]) contains(ctx context.Context, op, key string, accHas, authHas containsFunc) (bool, error) {
	if err := f.alive(); err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}
	defer f.locks.ReadLock(key)()

	ok, err := accHas(ctx, key)
	if err != nil {
		return false, f.fail(op, TierAccelerator, key, err)
	}
	if ok {
		return true, nil
	}
	ok, err = authHas(ctx, key)
	if err != nil {
		return false, f.fail(op, TierAuthority, key, err)
	}
	return ok, nil
}

// IsCached reports whether the accelerator currently holds key.
func (f *FrontTier[V]) IsCached(ctx context.Context, key string) (bool, error) {
	return f.contains(ctx, "is_cached", key, f.acc.ContainsKey, func(context.Context, string) (bool, error) {
		return false, nil
	})
}

// IsEvictionCandidate reports whether the authority may evict key now.
// When the key's lock is free it drops the accelerator's unpinned copy, so
// an eviction is never reported for an entry still cached above. A held
// lock, or a lock domain without TryWriteLock, yields false.
func (f *FrontTier[V]) IsEvictionCandidate(ctx context.Context, key string) (bool, error) {
	const op = "is_eviction_candidate"
	if err := f.alive(); err != nil {
		return false, err
	}
	if key == "" {
		return false, nil
	}
	tl, ok := f.locks.(TryLocker)
	if !ok {
		return false, nil
	}
	unlock, ok := tl.TryWriteLock(key)
	if !ok {
		return false, nil
	}
	defer unlock()

	e, found, err := f.acc.GetQuiet(ctx, key)
	if err != nil {
		return false, f.fail(op, TierAccelerator, key, err)
	}
	if found && !e.Pinned {
		if _, _, err := f.acc.Remove(ctx, key); err != nil {
			return false, f.fail(op, TierAccelerator, key, err)
		}
	}
	return true, nil
}

// Keys lists the authority's keyspace. Keys pinned only in the accelerator
// are not included.
func (f *FrontTier[V]) Keys(ctx context.Context) ([]string, error) {
	if err := f.alive(); err != nil {
		return nil, err
	}
	defer f.locks.ReadLockAll()()

	keys, err := f.auth.Keys(ctx)
	if err != nil {
		return nil, f.fail("keys", TierAuthority, "", err)
	}
	return keys, nil
}

func (f *FrontTier[V]) RemoveAll(ctx context.Context) error {
	if err := f.alive(); err != nil {
		return err
	}
	defer f.locks.WriteLockAll()()

	if err := f.acc.RemoveAll(ctx); err != nil {
		return f.fail("remove_all", TierAccelerator, "", err)
	}
	if err := f.auth.RemoveAll(ctx); err != nil {
		return f.fail("remove_all", TierAuthority, "", err)
	}
	return nil
}

// Dispose releases the accelerator and then the authority. Repeated calls
// return the first result; every other operation fails with ErrDisposed.
func (f *FrontTier[V]) Dispose(ctx context.Context) error {
	f.disposeOnce.Do(func() {
		f.disposed.Store(true)
		accErr := f.acc.Dispose(ctx)
		authErr := f.auth.Dispose(ctx)
		if accErr != nil {
			accErr = &TierError{Op: "dispose", Tier: TierAccelerator, Err: accErr}
		}
		if authErr != nil {
			authErr = &TierError{Op: "dispose", Tier: TierAuthority, Err: authErr}
		}
		f.disposeErr = errors.Join(accErr, authErr)
		f.log.Debug("front tier disposed", Fields{"err": f.disposeErr})
	})
	return f.disposeErr
}

// Sizes sums every storage layer across both tiers. Logical is
// max(accelerator, authority + accelerator pinned) since the tiers overlap.
func (f *FrontTier[V]) Sizes(ctx context.Context) (Sizes, error) {
	if err := f.alive(); err != nil {
		return Sizes{}, err
	}
	defer f.locks.ReadLockAll()()

	a, err := f.acc.Sizes(ctx)
	if err != nil {
		return Sizes{}, f.fail("sizes", TierAccelerator, "", err)
	}
	b, err := f.auth.Sizes(ctx)
	if err != nil {
		return Sizes{}, f.fail("sizes", TierAuthority, "", err)
	}
	return combineSizes(a, b), nil
}

func combineSizes(acc, auth Sizes) Sizes {
	return Sizes{
		Logical:        max(acc.Logical, auth.Logical+acc.Pinned),
		InMemory:       acc.InMemory + auth.InMemory,
		OffHeap:        acc.OffHeap + auth.OffHeap,
		OnDisk:         acc.OnDisk + auth.OnDisk,
		Clustered:      acc.Clustered + auth.Clustered,
		Pinned:         acc.Pinned + auth.Pinned,
		InMemoryBytes:  acc.InMemoryBytes + auth.InMemoryBytes,
		OffHeapBytes:   acc.OffHeapBytes + auth.OffHeapBytes,
		OnDiskBytes:    acc.OnDiskBytes + auth.OnDiskBytes,
		ClusteredBytes: acc.ClusteredBytes + auth.ClusteredBytes,
	}
}

// Size is the logical entry count.
func (f *FrontTier[V]) Size(ctx context.Context) (int, error) {
	s, err := f.Sizes(ctx)
	return s.Logical, err
}

// ExpireElements expires the authority first so a stale accelerator copy
// never produces a second expiry notification.
func (f *FrontTier[V]) ExpireElements(ctx context.Context) error {
	if err := f.alive(); err != nil {
		return err
	}
	defer f.locks.WriteLockAll()()

	if err := f.auth.ExpireElements(ctx); err != nil {
		return f.fail("expire_elements", TierAuthority, "", err)
	}
	if err := f.acc.ExpireElements(ctx); err != nil {
		return f.fail("expire_elements", TierAccelerator, "", err)
	}
	return nil
}

func (f *FrontTier[V]) Flush(ctx context.Context) error {
	if err := f.alive(); err != nil {
		return err
	}
	if err := f.acc.Flush(ctx); err != nil {
		return f.fail("flush", TierAccelerator, "", err)
	}
	if err := f.auth.Flush(ctx); err != nil {
		return f.fail("flush", TierAuthority, "", err)
	}
	return nil
}

func (f *FrontTier[V]) BufferFull() bool { return f.acc.BufferFull() || f.auth.BufferFull() }

// Full reports the accelerator's admission signal, honoring AlwaysAdmit.
func (f *FrontTier[V]) Full() bool { return f.acceleratorFull() }

func (f *FrontTier[V]) acceleratorFull() bool {
	if f.alwaysAdmit {
		return false
	}
	return f.acc.Full()
}

func (f *FrontTier[V]) EvictionPolicy() eviction.Kind { return f.acc.EvictionPolicy() }

func (f *FrontTier[V]) SetEvictionPolicy(k eviction.Kind) error {
	if err := f.acc.SetEvictionPolicy(k); err != nil {
		return &TierError{Op: "set_eviction_policy", Tier: TierAccelerator, Err: err}
	}
	return nil
}

// InternalContext exposes the lock domain guarding composed operations.
func (f *FrontTier[V]) InternalContext() any { return f.locks }

// Monitor forwards the authority's monitoring handle.
func (f *FrontTier[V]) Monitor() any { return f.auth.Monitor() }

// The composer's own LockDomain is separate from f.locks, so an outer
// composer may lock through it and still call back in.
func (f *FrontTier[V]) ReadLock(key string) func()  { return f.own.ReadLock(key) }
func (f *FrontTier[V]) WriteLock(key string) func() { return f.own.WriteLock(key) }
func (f *FrontTier[V]) ReadLockAll() func()         { return f.own.ReadLockAll() }
func (f *FrontTier[V]) WriteLockAll() func()        { return f.own.WriteLockAll() }

func (f *FrontTier[V]) TryWriteLock(key string) (func(), bool) { return f.own.TryWriteLock(key) }

func (f *FrontTier[V]) alive() error {
	if f.disposed.Load() {
		return ErrDisposed
	}
	return nil
}

func (f *FrontTier[V]) read(op string, e Entry[V]) (Entry[V], bool, error) {
	out, err := f.iso.ForRead(e)
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("tiercache: %s %q: copy for read: %w", op, e.Key, err)
	}
	return out, true, nil
}

func (f *FrontTier[V]) write(op string, e Entry[V]) (Entry[V], error) {
	out, err := f.iso.ForWrite(e)
	if err != nil {
		return Entry[V]{}, fmt.Errorf("tiercache: %s %q: copy for write: %w", op, e.Key, err)
	}
	return out, nil
}

func (f *FrontTier[V]) fail(op, tier, key string, err error) error {
	f.hooks.TierFailure(op, tier, err)
	f.log.Warn("tier operation failed", Fields{"op": op, "tier": tier, "key": key, "err": err})
	return &TierError{Op: op, Tier: tier, Key: key, Err: err}
}
