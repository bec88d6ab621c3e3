package tiercache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tiercache/eviction"
)

// Entry is one cached mapping. The composer never interprets the expiry
// fields; tiers do.
type Entry[V any] struct {
	Key            string
	Value          V
	Pinned         bool
	CreatedAt      time.Time
	LastAccessedAt time.Time
	TTI            time.Duration // time to idle; 0 => none
	TTL            time.Duration // time to live; 0 => none
	Eternal        bool
}

// NewEntry returns an unpinned entry created now.
func NewEntry[V any](key string, value V) Entry[V] {
	return Entry[V]{Key: key, Value: value, CreatedAt: time.Now()}
}

// Expired reports whether e has outlived its TTL or TTI at now.
func (e Entry[V]) Expired(now time.Time) bool {
	if e.Eternal {
		return false
	}
	if e.TTL > 0 && !e.CreatedAt.IsZero() && now.After(e.CreatedAt.Add(e.TTL)) {
		return true
	}
	if e.TTI > 0 {
		last := e.LastAccessedAt
		if last.IsZero() {
			last = e.CreatedAt
		}
		if !last.IsZero() && now.After(last.Add(e.TTI)) {
			return true
		}
	}
	return false
}

// ExpiresIn is the time left before e expires at now: the sooner of the
// remaining TTL and the remaining idle period. ok=false when e never
// expires; d <= 0 when it already has.
func (e Entry[V]) ExpiresIn(now time.Time) (d time.Duration, ok bool) {
	if e.Eternal {
		return 0, false
	}
	if e.TTL > 0 && !e.CreatedAt.IsZero() {
		d, ok = e.CreatedAt.Add(e.TTL).Sub(now), true
	}
	if e.TTI > 0 {
		last := e.LastAccessedAt
		if last.IsZero() {
			last = e.CreatedAt
		}
		if !last.IsZero() {
			if idle := last.Add(e.TTI).Sub(now); !ok || idle < d {
				d, ok = idle, true
			}
		}
	}
	return d, ok
}

// Sizes groups every size accessor of a tier. Counts are entries, *Bytes are bytes.
type Sizes struct {
	Logical   int
	InMemory  int
	OffHeap   int
	OnDisk    int
	Clustered int
	Pinned    int

	InMemoryBytes  int64
	OffHeapBytes   int64
	OnDiskBytes    int64
	ClusteredBytes int64
}

// Comparator decides whether two entries hold equal values.
type Comparator[V any] func(a, b Entry[V]) bool

// Writer receives write-behind notifications. Tiers call it synchronously,
// before applying the mutation it describes; an error aborts the mutation.
type Writer[V any] interface {
	OnPut(ctx context.Context, e Entry[V]) error
	// OnRemove gets the last known entry for key; found=false when the tier had none.
	OnRemove(ctx context.Context, key string, last Entry[V], found bool) error
}

// LockDomain hands out key-scoped and tier-wide read/write locks. Each
// acquire returns its release func. The locks must be distinct from the
// tier's own internal synchronization.
type LockDomain interface {
	ReadLock(key string) (unlock func())
	WriteLock(key string) (unlock func())
	ReadLockAll() (unlock func())
	WriteLockAll() (unlock func())
}

// TryLocker is an optional LockDomain extension: take key's write lock
// only if nobody holds it. Every tier shipped with tiercache implements it.
type TryLocker interface {
	TryWriteLock(key string) (unlock func(), ok bool)
}

// Pinner is implemented by tiers that can retain pinned entries themselves.
type Pinner interface {
	SupportsPinning() bool
}

// Tier is the capability set every accelerator or authority tier exposes.
// Implementations must be safe for concurrent use.
//
// Lookups return ok=false on a miss. Mutators that report a prior entry
// return it with existed=true. Put returns true when key was not present.
type Tier[V any] interface {
	LockDomain

	Get(ctx context.Context, key string) (Entry[V], bool, error)
	// GetQuiet is Get without access-time or statistics side effects.
	GetQuiet(ctx context.Context, key string) (Entry[V], bool, error)

	Put(ctx context.Context, e Entry[V]) (bool, error)
	PutWithWriter(ctx context.Context, e Entry[V], w Writer[V]) (bool, error)
	Remove(ctx context.Context, key string) (Entry[V], bool, error)
	RemoveWithWriter(ctx context.Context, key string, w Writer[V]) (Entry[V], bool, error)

	PutIfAbsent(ctx context.Context, e Entry[V]) (prior Entry[V], existed bool, err error)
	RemoveIfEqual(ctx context.Context, e Entry[V], cmp Comparator[V]) (Entry[V], bool, error)
	ReplaceIfEqual(ctx context.Context, old, repl Entry[V], cmp Comparator[V]) (bool, error)
	Replace(ctx context.Context, e Entry[V]) (prior Entry[V], replaced bool, err error)

	ContainsKey(ctx context.Context, key string) (bool, error)
	ContainsKeyOnDisk(ctx context.Context, key string) (bool, error)
	ContainsKeyOffHeap(ctx context.Context, key string) (bool, error)
	ContainsKeyInMemory(ctx context.Context, key string) (bool, error)

	Keys(ctx context.Context) ([]string, error)
	RemoveAll(ctx context.Context) error
	Dispose(ctx context.Context) error

	Sizes(ctx context.Context) (Sizes, error)
	ExpireElements(ctx context.Context) error
	Flush(ctx context.Context) error
	BufferFull() bool
	// Full is the tier's own admission signal.
	Full() bool

	EvictionPolicy() eviction.Kind
	SetEvictionPolicy(k eviction.Kind) error

	InternalContext() any
	Monitor() any
}

// Status is the lifecycle state of a composed tier.
type Status int32

const (
	StatusAlive Status = iota
	StatusShutdown
)

func (s Status) String() string {
	if s == StatusShutdown {
		return "SHUTDOWN"
	}
	return "ALIVE"
}

// Options tune a FrontTier. The zero value composes with no value isolation,
// locks from the authority and no logging.
type Options[V any] struct {
	// Value isolation. A Copier is required when either flag is set.
	Copier      Copier[V]
	CopyOnRead  bool
	CopyOnWrite bool

	AuthorityHandlesPinning bool // authority retains pinned entries itself
	AlwaysAdmit             bool // bypass the accelerator's Full() signal

	Locks  LockDomain // nil => authority
	Logger Logger     // nil => NopLogger
	Hooks  Hooks      // nil => NopHooks
	Name   string     // "" => random id, used in logs
}
