// Package redis is a clustered authority tier on go-redis.
//
// Keys live under "<Namespace>:" and values are wire-framed entries, so the
// tier can share a Redis deployment with other data. Conditional operations
// run as optimistic WATCH/MULTI transactions and are atomic across every
// process using the same namespace. Expiry is delegated to Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/stripe"
	"github.com/unkn0wn-root/tiercache/internal/util"
	"github.com/unkn0wn-root/tiercache/internal/wire"
)

var (
	ErrNilClient = errors.New("redis tier: nil client")
	ErrNoCodec   = errors.New("redis tier: codec is required")
	// ErrContention is returned when a conditional operation lost the
	// optimistic race MaxRetries times in a row.
	ErrContention = errors.New("redis tier: too much contention")
)

type Config[V any] struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this tier exclusively owns the client
	Namespace   string
	Codec       codec.Codec[V]

	ScanCount  int64 // SCAN COUNT hint; 0 => 256
	MaxRetries int   // optimistic transaction attempts; 0 => 8
	Stripes    int
	Logger     tiercache.Logger
	Now        func() time.Time
}

type Tier[V any] struct {
	rdb         goredis.UniversalClient
	closeClient bool
	ns          string
	codec       codec.Codec[V]
	scanCount   int64
	retries     int
	log         tiercache.Logger
	now         func() time.Time

	locks     *stripe.Locks
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ tiercache.Tier[struct{}] = (*Tier[struct{}])(nil)

func New[V any](cfg Config[V]) (*Tier[V], error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Codec == nil {
		return nil, ErrNoCodec
	}
	t := &Tier[V]{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		ns:          cfg.Namespace,
		codec:       cfg.Codec,
		scanCount:   cfg.ScanCount,
		retries:     cfg.MaxRetries,
		log:         cfg.Logger,
		now:         cfg.Now,
		locks:       stripe.New(cfg.Stripes),
	}
	if t.scanCount <= 0 {
		t.scanCount = 256
	}
	if t.retries <= 0 {
		t.retries = 8
	}
	if t.log == nil {
		t.log = tiercache.NopLogger{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t, nil
}

// SupportsPinning is false: a maxmemory policy may evict any key.
func (t *Tier[V]) SupportsPinning() bool { return false }

func (t *Tier[V]) ReadLock(key string) func()  { return t.locks.ReadLock(key) }
func (t *Tier[V]) WriteLock(key string) func() { return t.locks.WriteLock(key) }
func (t *Tier[V]) ReadLockAll() func()         { return t.locks.ReadLockAll() }
func (t *Tier[V]) WriteLockAll() func()        { return t.locks.WriteLockAll() }

func (t *Tier[V]) TryWriteLock(key string) (func(), bool) { return t.locks.TryWriteLock(key) }

func (t *Tier[V]) key(k string) string { return util.Namespaced(t.ns, k) }

func (t *Tier[V]) alive() error {
	if t.closed.Load() {
		return tiercache.ErrDisposed
	}
	return nil
}

func emptyKey(op string) error {
	return fmt.Errorf("%w: redis tier %s: empty key", tiercache.ErrInvalidArgument, op)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// read fetches and decodes key through c (the client or a watching Tx).
// Foreign or corrupt values read as a miss.
func (t *Tier[V]) read(ctx context.Context, c getter, key string) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	b, err := c.Get(ctx, t.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return zero, false, nil // miss
	}
	if err != nil {
		return zero, false, err // transport/server error
	}
	e, err := wire.Unmarshal(t.codec, b)
	if err != nil || e.Key != key {
		t.log.Warn("redis tier ignored corrupt entry", tiercache.Fields{"key": t.key(key), "err": err})
		return zero, false, nil
	}
	return e, true, nil
}

// encode frames e and computes its Redis expiry. expired=true when e must
// not be written at all.
func (t *Tier[V]) encode(e tiercache.Entry[V]) (b []byte, ttl time.Duration, expired bool, err error) {
	now := t.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if d, ok := e.ExpiresIn(now); ok {
		if d <= 0 {
			return nil, 0, true, nil
		}
		ttl = d
	}
	b, err = wire.Marshal(t.codec, e)
	return b, ttl, false, err
}

// write queues the store of e on p (a delete if e is already expired).
func (t *Tier[V]) write(ctx context.Context, p goredis.Pipeliner, e tiercache.Entry[V]) error {
	b, ttl, expired, err := t.encode(e)
	if err != nil {
		return err
	}
	if expired {
		p.Del(ctx, t.key(e.Key))
		return nil
	}
	p.Set(ctx, t.key(e.Key), b, ttl)
	return nil
}

// atomically runs fn in a WATCH on key, retrying lost races.
func (t *Tier[V]) atomically(ctx context.Context, key string, fn func(tx *goredis.Tx) error) error {
	sk := t.key(key)
	for i := 0; i < t.retries; i++ {
		err := t.rdb.Watch(ctx, fn, sk)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		t.log.Debug("redis tier transaction retry", tiercache.Fields{"key": sk, "attempt": i + 1})
	}
	return fmt.Errorf("%w: %s", ErrContention, sk)
}

func (t *Tier[V]) Get(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	if err := t.alive(); err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	e, ok, err := t.read(ctx, t.rdb, key)
	if err != nil || !ok {
		return tiercache.Entry[V]{}, false, err
	}
	now := t.now()
	e.LastAccessedAt = now
	if e.TTI > 0 && !e.Eternal {
		// slide the idle window; the stored access time is left as is
		if d, ok := e.ExpiresIn(now); ok && d > 0 {
			if err := t.rdb.PExpire(ctx, t.key(key), d).Err(); err != nil {
				return tiercache.Entry[V]{}, false, err
			}
		}
	}
	return e, true, nil
}

func (t *Tier[V]) GetQuiet(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	if err := t.alive(); err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	return t.read(ctx, t.rdb, key)
}

func (t *Tier[V]) Put(ctx context.Context, e tiercache.Entry[V]) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	if e.Key == "" {
		return false, emptyKey("put")
	}
	var exists *goredis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		exists = p.Exists(ctx, t.key(e.Key))
		return t.write(ctx, p, e)
	})
	if err != nil {
		return false, err
	}
	return exists.Val() == 0, nil
}

// PutWithWriter calls w inside the key's transaction, before the write is
// queued. w may run more than once when the key is contended.
func (t *Tier[V]) PutWithWriter(ctx context.Context, e tiercache.Entry[V], w tiercache.Writer[V]) (bool, error) {
	if w == nil {
		return t.Put(ctx, e)
	}
	if err := t.alive(); err != nil {
		return false, err
	}
	if e.Key == "" {
		return false, emptyKey("put_with_writer")
	}
	var inserted bool
	err := t.atomically(ctx, e.Key, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, t.key(e.Key)).Result()
		if err != nil {
			return err
		}
		if err := w.OnPut(ctx, e); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return t.write(ctx, p, e)
		})
		inserted = n == 0
		return err
	})
	return inserted, err
}

func (t *Tier[V]) Remove(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	return t.RemoveWithWriter(ctx, key, nil)
}

func (t *Tier[V]) RemoveWithWriter(ctx context.Context, key string, w tiercache.Writer[V]) (tiercache.Entry[V], bool, error) {
	var (
		old   tiercache.Entry[V]
		found bool
	)
	if err := t.alive(); err != nil {
		return old, false, err
	}
	err := t.atomically(ctx, key, func(tx *goredis.Tx) error {
		var err error
		old, found, err = t.read(ctx, tx, key)
		if err != nil {
			return err
		}
		if w != nil {
			if err := w.OnRemove(ctx, key, old, found); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, t.key(key))
			return nil
		})
		return err
	})
	if err != nil || !found {
		return tiercache.Entry[V]{}, false, err
	}
	return old, true, nil
}

func (t *Tier[V]) PutIfAbsent(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	var (
		prior   tiercache.Entry[V]
		existed bool
	)
	if err := t.alive(); err != nil {
		return prior, false, err
	}
	if e.Key == "" {
		return prior, false, emptyKey("put_if_absent")
	}
	err := t.atomically(ctx, e.Key, func(tx *goredis.Tx) error {
		var err error
		prior, existed, err = t.read(ctx, tx, e.Key)
		if err != nil || existed {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return t.write(ctx, p, e)
		})
		return err
	})
	if err != nil || !existed {
		return tiercache.Entry[V]{}, false, err
	}
	return prior, true, nil
}

func (t *Tier[V]) RemoveIfEqual(ctx context.Context, e tiercache.Entry[V], eq tiercache.Comparator[V]) (tiercache.Entry[V], bool, error) {
	var (
		cur     tiercache.Entry[V]
		removed bool
	)
	if err := t.alive(); err != nil {
		return cur, false, err
	}
	if e.Key == "" {
		return cur, false, emptyKey("remove_if_equal")
	}
	err := t.atomically(ctx, e.Key, func(tx *goredis.Tx) error {
		var (
			ok  bool
			err error
		)
		removed = false
		cur, ok, err = t.read(ctx, tx, e.Key)
		if err != nil || !ok || !eq(e, cur) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, t.key(e.Key))
			return nil
		})
		removed = err == nil
		return err
	})
	if err != nil || !removed {
		return tiercache.Entry[V]{}, false, err
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
	var swapped bool
	err := t.atomically(ctx, repl.Key, func(tx *goredis.Tx) error {
		swapped = false
		cur, ok, err := t.read(ctx, tx, repl.Key)
		if err != nil || !ok || !eq(old, cur) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return t.write(ctx, p, repl)
		})
		swapped = err == nil
		return err
	})
	return swapped, err
}

func (t *Tier[V]) Replace(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	var (
		prior    tiercache.Entry[V]
		replaced bool
	)
	if err := t.alive(); err != nil {
		return prior, false, err
	}
	if e.Key == "" {
		return prior, false, emptyKey("replace")
	}
	err := t.atomically(ctx, e.Key, func(tx *goredis.Tx) error {
		var err error
		prior, replaced, err = t.read(ctx, tx, e.Key)
		if err != nil || !replaced {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			return t.write(ctx, p, e)
		})
		return err
	})
	if err != nil || !replaced {
		return tiercache.Entry[V]{}, false, err
	}
	return prior, true, nil
}

func (t *Tier[V]) ContainsKey(ctx context.Context, key string) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	_, ok, err := t.read(ctx, t.rdb, key)
	return ok, err
}

// Redis data is clustered; it never counts as local memory, heap or disk.
func (t *Tier[V]) ContainsKeyOnDisk(context.Context, string) (bool, error)   { return false, nil }
func (t *Tier[V]) ContainsKeyOffHeap(context.Context, string) (bool, error)  { return false, nil }
func (t *Tier[V]) ContainsKeyInMemory(context.Context, string) (bool, error) { return false, nil }

// storageKeys lists every Redis key in the namespace. Cluster clients are
// scanned master by master.
func (t *Tier[V]) storageKeys(ctx context.Context) ([]string, error) {
	pattern := util.MatchPattern(t.ns)
	var (
		mu  sync.Mutex
		out []string
	)
	scan := func(ctx context.Context, c goredis.Cmdable) error {
		iter := c.Scan(ctx, 0, pattern, t.scanCount).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			out = append(out, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}
	var err error
	if cc, ok := t.rdb.(*goredis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, c *goredis.Client) error {
			return scan(ctx, c)
		})
	} else {
		err = scan(ctx, t.rdb)
	}
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (t *Tier[V]) Keys(ctx context.Context) ([]string, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	sks, err := t.storageKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sks))
	for _, sk := range sks {
		if k, ok := util.StripNamespace(t.ns, sk); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

const delBatch = 512

// RemoveAll deletes every key in the namespace, one DEL per key so cluster
// slots never matter.
func (t *Tier[V]) RemoveAll(ctx context.Context) error {
	if err := t.alive(); err != nil {
		return err
	}
	sks, err := t.storageKeys(ctx)
	if err != nil {
		return err
	}
	for batch := range slices.Chunk(sks, delBatch) {
		_, err := t.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for _, sk := range batch {
				p.Del(ctx, sk)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Dispose closes the client when the tier owns it. Safe to call multiple
// times; later operations fail with ErrDisposed.
func (t *Tier[V]) Dispose(context.Context) error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.closeClient {
			if err := t.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
				t.closeErr = err
			}
		}
	})
	return t.closeErr
}

// Sizes reads every entry in the namespace to count pinned ones and bytes.
func (t *Tier[V]) Sizes(ctx context.Context) (tiercache.Sizes, error) {
	if err := t.alive(); err != nil {
		return tiercache.Sizes{}, err
	}
	sks, err := t.storageKeys(ctx)
	if err != nil {
		return tiercache.Sizes{}, err
	}
	var s tiercache.Sizes
	for batch := range slices.Chunk(sks, delBatch) {
		cmds := make([]*goredis.StringCmd, len(batch))
		_, err := t.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for i, sk := range batch {
				cmds[i] = p.Get(ctx, sk)
			}
			return nil
		})
		if err != nil && !errors.Is(err, goredis.Nil) {
			return tiercache.Sizes{}, err
		}
		for _, c := range cmds {
			b, err := c.Bytes()
			if err != nil {
				continue // expired since the scan
			}
			env, err := wire.Decode(b)
			if err != nil {
				continue
			}
			s.Clustered++
			s.ClusteredBytes += int64(len(b))
			if env.Pinned {
				s.Pinned++
			}
		}
	}
	s.Logical = s.Clustered
	return s, nil
}

// ExpireElements is a no-op: Redis expires keys itself.
func (t *Tier[V]) ExpireElements(context.Context) error { return t.alive() }
func (t *Tier[V]) Flush(context.Context) error          { return t.alive() }
func (t *Tier[V]) BufferFull() bool                     { return false }
func (t *Tier[V]) Full() bool                           { return false }

// EvictionPolicy is None; eviction is the server's maxmemory-policy.
func (t *Tier[V]) EvictionPolicy() eviction.Kind { return eviction.None }

func (t *Tier[V]) SetEvictionPolicy(k eviction.Kind) error {
	return fmt.Errorf("%w: redis eviction is the server's maxmemory-policy (requested %s)", tiercache.ErrUnsupported, k)
}

func (t *Tier[V]) InternalContext() any { return t.locks }

// Monitor returns the client's connection pool stats.
func (t *Tier[V]) Monitor() any { return t.rdb.PoolStats() }
