// Package mongo is a durable authority tier on MongoDB.
//
// One document per key in a caller-provided collection. Every write bumps a
// version field and conditional operations are compare-and-set on that
// version, so they stay atomic across processes. Entries never get evicted,
// only expired, which makes the tier able to pin.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/internal/stripe"
)

var (
	ErrNilCollection = errors.New("mongo tier: nil collection")
	ErrNoCodec       = errors.New("mongo tier: codec is required")
	// ErrContention is returned when a conditional operation lost the
	// version race MaxRetries times in a row.
	ErrContention = errors.New("mongo tier: too much contention")
)

type Config[V any] struct {
	Collection *mongo.Collection
	Codec      codec.Codec[V]

	// EnsureIndexes creates a TTL index on expires_at so the server reaps
	// expired documents in the background.
	EnsureIndexes bool
	// Disconnect the collection's client on Dispose. Only for exclusive owners.
	Disconnect bool

	MaxRetries int // optimistic attempts; 0 => 8
	Stripes    int
	Logger     tiercache.Logger
	Now        func() time.Time
}

type Tier[V any] struct {
	coll       *mongo.Collection
	codec      codec.Codec[V]
	disconnect bool
	retries    int
	log        tiercache.Logger
	now        func() time.Time

	locks  *stripe.Locks
	closed atomic.Bool
}

var (
	_ tiercache.Tier[struct{}] = (*Tier[struct{}])(nil)
	_ tiercache.Pinner         = (*Tier[struct{}])(nil)
)

func New[V any](ctx context.Context, cfg Config[V]) (*Tier[V], error) {
	if cfg.Collection == nil {
		return nil, ErrNilCollection
	}
	if cfg.Codec == nil {
		return nil, ErrNoCodec
	}
	t := &Tier[V]{
		coll:       cfg.Collection,
		codec:      cfg.Codec,
		disconnect: cfg.Disconnect,
		retries:    cfg.MaxRetries,
		log:        cfg.Logger,
		now:        cfg.Now,
		locks:      stripe.New(cfg.Stripes),
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
	if cfg.EnsureIndexes {
		_, err := t.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("tiercache_expires_at").SetExpireAfterSeconds(0),
		})
		if err != nil {
			return nil, fmt.Errorf("mongo tier: create ttl index: %w", err)
		}
	}
	return t, nil
}

func (t *Tier[V]) SupportsPinning() bool { return true }

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
	return fmt.Errorf("%w: mongo tier %s: empty key", tiercache.ErrInvalidArgument, op)
}

// find returns the raw document for key, expired or not.
func (t *Tier[V]) find(ctx context.Context, key string) (document, bool, error) {
	var d document
	err := t.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return d, false, nil
	}
	if err != nil {
		return d, false, err
	}
	return d, true, nil
}

// current returns the live document for key. An expired one is deleted
// (if unchanged) and reported as missing.
func (t *Tier[V]) current(ctx context.Context, key string) (document, bool, error) {
	d, ok, err := t.find(ctx, key)
	if err != nil || !ok {
		return d, false, err
	}
	if d.expired(t.now()) {
		_, err := t.coll.DeleteOne(ctx, bson.M{"_id": key, "version": d.Version})
		return document{}, false, err
	}
	return d, true, nil
}

// retry runs fn until it reports done or the attempts run out.
func (t *Tier[V]) retry(key string, fn func() (done bool, err error)) error {
	for i := 0; i < t.retries; i++ {
		done, err := fn()
		if err != nil || done {
			return err
		}
		t.log.Debug("mongo tier version conflict", tiercache.Fields{"key": key, "attempt": i + 1})
	}
	return fmt.Errorf("%w: %s", ErrContention, key)
}

func (t *Tier[V]) entry(d document) (tiercache.Entry[V], error) {
	e, err := fromDocument(t.codec, d)
	if err != nil {
		return tiercache.Entry[V]{}, fmt.Errorf("mongo tier: decode %q: %w", d.Key, err)
	}
	return e, nil
}

func (t *Tier[V]) Get(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	d, ok, err := t.current(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := t.entry(d)
	if err != nil {
		return zero, false, err
	}
	now := t.now()
	e.LastAccessedAt = now
	set := bson.M{"accessed_at": now}
	if left, ok := e.ExpiresIn(now); ok {
		set["expires_at"] = now.Add(left)
	}
	// a concurrent write wins over the access time
	if _, err := t.coll.UpdateOne(ctx, bson.M{"_id": key, "version": d.Version}, bson.M{"$set": set}); err != nil {
		return zero, false, err
	}
	return e, true, nil
}

func (t *Tier[V]) GetQuiet(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	d, ok, err := t.current(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	e, err := t.entry(d)
	return e, err == nil, err
}

// Put upserts e and reports whether no live document existed before.
func (t *Tier[V]) Put(ctx context.Context, e tiercache.Entry[V]) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	if e.Key == "" {
		return false, emptyKey("put")
	}
	now := t.now()
	d, err := toDocument(t.codec, e, now)
	if err != nil {
		return false, err
	}
	var prior document
	err = t.coll.FindOneAndUpdate(ctx, bson.M{"_id": e.Key}, d.update(),
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before),
	).Decode(&prior)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return prior.expired(now), nil
}

// PutWithWriter calls w and then upserts e.
func (t *Tier[V]) PutWithWriter(ctx context.Context, e tiercache.Entry[V], w tiercache.Writer[V]) (bool, error) {
	if w != nil {
		if err := t.alive(); err != nil {
			return false, err
		}
		if e.Key == "" {
			return false, emptyKey("put_with_writer")
		}
		if err := w.OnPut(ctx, e); err != nil {
			return false, err
		}
	}
	return t.Put(ctx, e)
}

func (t *Tier[V]) Remove(ctx context.Context, key string) (tiercache.Entry[V], bool, error) {
	var zero tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return zero, false, err
	}
	var d document
	err := t.coll.FindOneAndDelete(ctx, bson.M{"_id": key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	if d.expired(t.now()) {
		return zero, false, nil
	}
	e, err := t.entry(d)
	return e, err == nil, err
}

// RemoveWithWriter hands w the live entry and deletes it if it is still the
// same version. w may run more than once when the key is contended.
func (t *Tier[V]) RemoveWithWriter(ctx context.Context, key string, w tiercache.Writer[V]) (tiercache.Entry[V], bool, error) {
	if w == nil {
		return t.Remove(ctx, key)
	}
	var (
		old   tiercache.Entry[V]
		found bool
	)
	if err := t.alive(); err != nil {
		return old, false, err
	}
	err := t.retry(key, func() (bool, error) {
		d, ok, err := t.current(ctx, key)
		if err != nil {
			return false, err
		}
		old, found = tiercache.Entry[V]{}, ok
		if ok {
			if old, err = t.entry(d); err != nil {
				return false, err
			}
		}
		if err := w.OnRemove(ctx, key, old, found); err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		res, err := t.coll.DeleteOne(ctx, bson.M{"_id": key, "version": d.Version})
		if err != nil {
			return false, err
		}
		return res.DeletedCount == 1, nil
	})
	if err != nil || !found {
		return tiercache.Entry[V]{}, false, err
	}
	return old, true, nil
}

func (t *Tier[V]) PutIfAbsent(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	var prior tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return prior, false, err
	}
	if e.Key == "" {
		return prior, false, emptyKey("put_if_absent")
	}
	d, err := toDocument(t.codec, e, t.now())
	if err != nil {
		return prior, false, err
	}
	d.Version = 1

	var existed bool
	err = t.retry(e.Key, func() (bool, error) {
		_, err := t.coll.InsertOne(ctx, d)
		if err == nil {
			return true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return false, err
		}
		cur, ok, err := t.current(ctx, e.Key)
		if err != nil || !ok {
			return false, err // gone (or expired and reaped): insert again
		}
		prior, err = t.entry(cur)
		existed = err == nil
		return true, err
	})
	if err != nil || !existed {
		return tiercache.Entry[V]{}, false, err
	}
	return prior, true, nil
}

func (t *Tier[V]) RemoveIfEqual(ctx context.Context, e tiercache.Entry[V], eq tiercache.Comparator[V]) (tiercache.Entry[V], bool, error) {
	var cur tiercache.Entry[V]
	if err := t.alive(); err != nil {
		return cur, false, err
	}
	if e.Key == "" {
		return cur, false, emptyKey("remove_if_equal")
	}
	var removed bool
	err := t.retry(e.Key, func() (bool, error) {
		d, ok, err := t.current(ctx, e.Key)
		if err != nil || !ok {
			return true, err
		}
		if cur, err = t.entry(d); err != nil {
			return false, err
		}
		if !eq(e, cur) {
			return true, nil
		}
		res, err := t.coll.DeleteOne(ctx, bson.M{"_id": e.Key, "version": d.Version})
		if err != nil {
			return false, err
		}
		removed = res.DeletedCount == 1
		return removed, nil
	})
	if err != nil || !removed {
		return tiercache.Entry[V]{}, false, err
	}
	return cur, true, nil
}

// swap writes repl over the live document when match accepts it. It returns
// the entry it replaced.
func (t *Tier[V]) swap(ctx context.Context, repl tiercache.Entry[V], match func(cur tiercache.Entry[V]) bool) (tiercache.Entry[V], bool, error) {
	var (
		prior    tiercache.Entry[V]
		replaced bool
	)
	err := t.retry(repl.Key, func() (bool, error) {
		d, ok, err := t.current(ctx, repl.Key)
		if err != nil || !ok {
			return true, err
		}
		if prior, err = t.entry(d); err != nil {
			return false, err
		}
		if !match(prior) {
			return true, nil
		}
		next, err := toDocument(t.codec, repl, t.now())
		if err != nil {
			return false, err
		}
		res, err := t.coll.UpdateOne(ctx, bson.M{"_id": repl.Key, "version": d.Version}, next.update())
		if err != nil {
			return false, err
		}
		replaced = res.MatchedCount == 1
		return replaced, nil
	})
	if err != nil || !replaced {
		return tiercache.Entry[V]{}, false, err
	}
	return prior, true, nil
}

func (t *Tier[V]) ReplaceIfEqual(ctx context.Context, old, repl tiercache.Entry[V], eq tiercache.Comparator[V]) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	if repl.Key == "" {
		return false, emptyKey("replace_if_equal")
	}
	_, swapped, err := t.swap(ctx, repl, func(cur tiercache.Entry[V]) bool { return eq(old, cur) })
	return swapped, err
}

func (t *Tier[V]) Replace(ctx context.Context, e tiercache.Entry[V]) (tiercache.Entry[V], bool, error) {
	if err := t.alive(); err != nil {
		return tiercache.Entry[V]{}, false, err
	}
	if e.Key == "" {
		return tiercache.Entry[V]{}, false, emptyKey("replace")
	}
	return t.swap(ctx, e, func(tiercache.Entry[V]) bool { return true })
}

func (t *Tier[V]) ContainsKey(ctx context.Context, key string) (bool, error) {
	if err := t.alive(); err != nil {
		return false, err
	}
	n, err := t.coll.CountDocuments(ctx, bson.M{"$and": bson.A{bson.M{"_id": key}, live(t.now())}})
	return n > 0, err
}

func (t *Tier[V]) ContainsKeyOnDisk(ctx context.Context, key string) (bool, error) {
	return t.ContainsKey(ctx, key)
}

func (t *Tier[V]) ContainsKeyOffHeap(context.Context, string) (bool, error)  { return false, nil }
func (t *Tier[V]) ContainsKeyInMemory(context.Context, string) (bool, error) { return false, nil }

// Keys returns live keys in _id order.
func (t *Tier[V]) Keys(ctx context.Context) ([]string, error) {
	if err := t.alive(); err != nil {
		return nil, err
	}
	cursor, err := t.coll.Find(ctx, live(t.now()),
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var rows []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out, nil
}

func (t *Tier[V]) RemoveAll(ctx context.Context) error {
	if err := t.alive(); err != nil {
		return err
	}
	_, err := t.coll.DeleteMany(ctx, bson.M{})
	return err
}

// Dispose disconnects the client when configured to. Later operations fail
// with ErrDisposed.
func (t *Tier[V]) Dispose(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.disconnect {
		return t.coll.Database().Client().Disconnect(ctx)
	}
	return nil
}

// Sizes aggregates the live documents: count, pinned count and BSON bytes.
func (t *Tier[V]) Sizes(ctx context.Context) (tiercache.Sizes, error) {
	if err := t.alive(); err != nil {
		return tiercache.Sizes{}, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: live(t.now())}},
		{{Key: "$group", Value: bson.M{
			"_id":    nil,
			"n":      bson.M{"$sum": 1},
			"pinned": bson.M{"$sum": bson.M{"$cond": bson.A{"$pinned", 1, 0}}},
			"bytes":  bson.M{"$sum": bson.M{"$bsonSize": "$$ROOT"}},
		}}},
	}
	cursor, err := t.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return tiercache.Sizes{}, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var agg struct {
		N      int   `bson:"n"`
		Pinned int   `bson:"pinned"`
		Bytes  int64 `bson:"bytes"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&agg); err != nil {
			return tiercache.Sizes{}, err
		}
	}
	if err := cursor.Err(); err != nil {
		return tiercache.Sizes{}, err
	}
	return tiercache.Sizes{
		Logical:     agg.N,
		OnDisk:      agg.N,
		Pinned:      agg.Pinned,
		OnDiskBytes: agg.Bytes,
	}, nil
}

// ExpireElements deletes expired documents now rather than waiting for the
// server's TTL monitor.
func (t *Tier[V]) ExpireElements(ctx context.Context) error {
	if err := t.alive(); err != nil {
		return err
	}
	_, err := t.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": t.now()}})
	return err
}

func (t *Tier[V]) Flush(context.Context) error { return t.alive() }
func (t *Tier[V]) BufferFull() bool            { return false }
func (t *Tier[V]) Full() bool                  { return false }

func (t *Tier[V]) EvictionPolicy() eviction.Kind { return eviction.None }

func (t *Tier[V]) SetEvictionPolicy(k eviction.Kind) error {
	return fmt.Errorf("%w: mongo tier never evicts (requested %s)", tiercache.ErrUnsupported, k)
}

func (t *Tier[V]) InternalContext() any { return t.locks }

// Monitor returns the backing collection.
func (t *Tier[V]) Monitor() any { return t.coll }
