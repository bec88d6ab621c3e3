// Package ristretto backs a tier with dgraph-io/ristretto.
//
// Ristretto is cost bounded and may refuse or drop any entry (TinyLFU
// admission), so the tier fits the accelerator role. It does not pin.
package ristretto

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/tier/kv"
)

// item is what ristretto holds; the key rides along so eviction callbacks
// can keep the key index in sync.
type item struct {
	key string
	b   []byte
}

// Store is a kv.Store over a ristretto cache.
type Store struct {
	c *rc.Cache

	mu   sync.Mutex
	keys map[string]int64 // key -> cost
}

var (
	_ kv.Store     = (*Store)(nil)
	_ kv.ByteSizer = (*Store)(nil)
)

type StoreConfig struct {
	NumCounters int64
	MaxCost     int64 // bytes; cost is the encoded entry size
	BufferItems int64
	Metrics     bool
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	s := &Store{keys: make(map[string]int64)}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
		OnEvict:            s.forget,
		OnReject:           s.forget,
	})
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

func (s *Store) forget(i *rc.Item) {
	it, ok := i.Value.(item)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.keys, it.key)
	s.mu.Unlock()
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	it, ok := v.(item)
	if !ok {
		// self-heal: drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return it.b, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if !s.c.SetWithTTL(key, item{key: key, b: value}, cost, ttl) {
		return false, nil
	}
	s.mu.Lock()
	s.keys[key] = cost
	s.mu.Unlock()
	// make the write visible to the next Get
	s.c.Wait()
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.c.Del(key)
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

// Keys returns indexed keys still present in the cache, pruning the rest.
func (s *Store) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		if _, ok := s.c.Get(k); ok {
			out = append(out, k)
		} else {
			delete(s.keys, k)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys), nil
}

func (s *Store) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.keys {
		n += c
	}
	return n
}

func (s *Store) Clear(context.Context) error {
	s.c.Clear()
	s.mu.Lock()
	s.keys = make(map[string]int64)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

// Metrics exposes ristretto's counters (nil unless StoreConfig.Metrics).
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

type Config[V any] struct {
	StoreConfig
	Codec      codec.Codec[V]
	MaxEntries int // Full() threshold; <= 0 => never full
	Logger     tiercache.Logger
}

// New returns a tier over a fresh ristretto cache. Monitor reports
// *ristretto.Metrics.
func New[V any](cfg Config[V]) (*kv.Tier[V], error) {
	s, err := NewStore(cfg.StoreConfig)
	if err != nil {
		return nil, err
	}
	t, err := kv.New(kv.Config[V]{
		Store:      s,
		Codec:      cfg.Codec,
		Layer:      kv.InMemory,
		MaxEntries: cfg.MaxEntries,
		Policy:     eviction.LFU,
		Monitor:    func() any { return s.Metrics() },
		Logger:     cfg.Logger,
	})
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return t, nil
}
