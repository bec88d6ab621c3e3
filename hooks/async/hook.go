// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/tiercache"
//	"github.com/unkn0wn-root/tiercache/hooks/async"
//	"github.com/unkn0wn-root/tiercache/hooks/slog"
//
// )
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    PromotedEvery: 100, // sample logs: ~every 100th promotion
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	front, _ := tiercache.NewAcceleratedDurable[User](mem, rdb, tiercache.Options[User]{
//	    Hooks: hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

// Hooks forwards events to inner on a bounded queue. Events that do not
// fit are dropped and counted.
type Hooks struct {
	inner   tiercache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Promoted(k string)          { h.try(func() { h.inner.Promoted(k) }) }
func (h *Hooks) AdmissionRejected(k string) { h.try(func() { h.inner.AdmissionRejected(k) }) }
func (h *Hooks) PinEnforced(k string)       { h.try(func() { h.inner.PinEnforced(k) }) }
func (h *Hooks) TierFailure(op, tier string, err error) {
	h.try(func() { h.inner.TierFailure(op, tier, err) })
}
