// Package bigcache backs a tier with allegro/bigcache, a sharded byte arena
// the garbage collector never scans. Entries count as off-heap.
//
// BigCache has no per-entry TTL; expiry comes from the entry metadata and
// the global LifeWindow, whichever is sooner. It does not pin.
package bigcache

import (
	"context"
	"errors"
	"slices"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/eviction"
	"github.com/unkn0wn-root/tiercache/tier/kv"
)

// Store is a kv.Store over a BigCache instance.
type Store struct {
	c *bc.BigCache
}

var (
	_ kv.Store     = (*Store)(nil)
	_ kv.ByteSizer = (*Store)(nil)
)

type StoreConfig struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: life window must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	// BigCache does not support per-entry TTL; uses global LifeWindow.
	return true, s.c.Set(key, value)
}

func (s *Store) Del(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (s *Store) Keys(context.Context) ([]string, error) {
	var out []string
	it := s.c.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			if errors.Is(err, bc.ErrInvalidIteratorState) || errors.Is(err, bc.ErrCannotRetrieveEntry) {
				continue // removed while iterating
			}
			return nil, err
		}
		out = append(out, info.Key())
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) Len(context.Context) (int, error) { return s.c.Len(), nil }
func (s *Store) Bytes() int64                     { return int64(s.c.Capacity()) }
func (s *Store) Clear(context.Context) error      { return s.c.Reset() }
func (s *Store) Close(context.Context) error      { return s.c.Close() }

// Stats exposes BigCache's hit/miss/collision counters.
func (s *Store) Stats() bc.Stats { return s.c.Stats() }

type Config[V any] struct {
	StoreConfig
	Codec      codec.Codec[V]
	MaxEntries int // Full() threshold; <= 0 => never full
	Logger     tiercache.Logger
}

// New returns an off-heap tier. Monitor reports bigcache.Stats.
func New[V any](cfg Config[V]) (*kv.Tier[V], error) {
	s, err := NewStore(cfg.StoreConfig)
	if err != nil {
		return nil, err
	}
	t, err := kv.New(kv.Config[V]{
		Store:      s,
		Codec:      cfg.Codec,
		Layer:      kv.OffHeap,
		MaxEntries: cfg.MaxEntries,
		Policy:     eviction.FIFO,
		Monitor:    func() any { return s.Stats() },
		Logger:     cfg.Logger,
	})
	if err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	return t, nil
}
