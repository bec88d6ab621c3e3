package tiercache_test

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/tier/memory"
)

// spy is a memory tier that records calls into a shared trace and fails
// the ops listed in fail.
type spy struct {
	*memory.Tier[string]
	name  string
	trace *[]string
	fail  map[string]error
	pins  bool
}

func newSpy(name string, trace *[]string, max int) *spy {
	return &spy{
		Tier:  memory.New[string](memory.Config{MaxEntries: max}),
		name:  name,
		trace: trace,
		fail:  map[string]error{},
		pins:  true,
	}
}

// traceMu guards every trace; spies and writers share one slice.
var traceMu sync.Mutex

func appendTrace(trace *[]string, op string) {
	traceMu.Lock()
	*trace = append(*trace, op)
	traceMu.Unlock()
}

func (s *spy) rec(op string) error {
	appendTrace(s.trace, s.name+"."+op)
	return s.fail[op]
}

func (s *spy) SupportsPinning() bool { return s.pins }

func (s *spy) Get(ctx context.Context, key string) (tiercache.Entry[string], bool, error) {
	if err := s.rec("Get"); err != nil {
		return tiercache.Entry[string]{}, false, err
	}
	return s.Tier.Get(ctx, key)
}

func (s *spy) GetQuiet(ctx context.Context, key string) (tiercache.Entry[string], bool, error) {
	if err := s.rec("GetQuiet"); err != nil {
		return tiercache.Entry[string]{}, false, err
	}
	return s.Tier.GetQuiet(ctx, key)
}

func (s *spy) Put(ctx context.Context, e tiercache.Entry[string]) (bool, error) {
	if err := s.rec("Put"); err != nil {
		return false, err
	}
	return s.Tier.Put(ctx, e)
}

func (s *spy) PutWithWriter(ctx context.Context, e tiercache.Entry[string], w tiercache.Writer[string]) (bool, error) {
	if err := s.rec("PutWithWriter"); err != nil {
		return false, err
	}
	return s.Tier.PutWithWriter(ctx, e, w)
}

func (s *spy) Remove(ctx context.Context, key string) (tiercache.Entry[string], bool, error) {
	if err := s.rec("Remove"); err != nil {
		return tiercache.Entry[string]{}, false, err
	}
	return s.Tier.Remove(ctx, key)
}

func (s *spy) RemoveWithWriter(ctx context.Context, key string, w tiercache.Writer[string]) (tiercache.Entry[string], bool, error) {
	if err := s.rec("RemoveWithWriter"); err != nil {
		return tiercache.Entry[string]{}, false, err
	}
	return s.Tier.RemoveWithWriter(ctx, key, w)
}

func (s *spy) PutIfAbsent(ctx context.Context, e tiercache.Entry[string]) (tiercache.Entry[string], bool, error) {
	if err := s.rec("PutIfAbsent"); err != nil {
		return tiercache.Entry[string]{}, false, err
	}
	return s.Tier.PutIfAbsent(ctx, e)
}

func (s *spy) ContainsKey(ctx context.Context, key string) (bool, error) {
	if err := s.rec("ContainsKey"); err != nil {
		return false, err
	}
	return s.Tier.ContainsKey(ctx, key)
}

func (s *spy) Keys(ctx context.Context) ([]string, error) {
	if err := s.rec("Keys"); err != nil {
		return nil, err
	}
	return s.Tier.Keys(ctx)
}

func (s *spy) RemoveAll(ctx context.Context) error {
	if err := s.rec("RemoveAll"); err != nil {
		return err
	}
	return s.Tier.RemoveAll(ctx)
}

func (s *spy) Dispose(ctx context.Context) error {
	if err := s.rec("Dispose"); err != nil {
		return err
	}
	return s.Tier.Dispose(ctx)
}

func (s *spy) ExpireElements(ctx context.Context) error {
	if err := s.rec("ExpireElements"); err != nil {
		return err
	}
	return s.Tier.ExpireElements(ctx)
}

func (s *spy) Sizes(ctx context.Context) (tiercache.Sizes, error) {
	if err := s.fail["Sizes"]; err != nil {
		return tiercache.Sizes{}, err
	}
	return s.Tier.Sizes(ctx)
}

// traceWriter appends its notifications to the shared trace.
type traceWriter struct {
	trace *[]string
	err   error
}

func (w traceWriter) OnPut(_ context.Context, e tiercache.Entry[string]) error {
	appendTrace(w.trace, "writer.OnPut:"+e.Key)
	return w.err
}

func (w traceWriter) OnRemove(_ context.Context, key string, _ tiercache.Entry[string], found bool) error {
	if found {
		appendTrace(w.trace, "writer.OnRemove:"+key)
	} else {
		appendTrace(w.trace, "writer.OnRemove:"+key+":missing")
	}
	return w.err
}

type hookLog struct {
	mu       sync.Mutex
	promoted []string
	rejected []string
	pinned   []string
	failures []string
}

var _ tiercache.Hooks = (*hookLog)(nil)

func (h *hookLog) Promoted(k string) {
	h.mu.Lock()
	h.promoted = append(h.promoted, k)
	h.mu.Unlock()
}

func (h *hookLog) AdmissionRejected(k string) {
	h.mu.Lock()
	h.rejected = append(h.rejected, k)
	h.mu.Unlock()
}

func (h *hookLog) PinEnforced(k string) {
	h.mu.Lock()
	h.pinned = append(h.pinned, k)
	h.mu.Unlock()
}

func (h *hookLog) TierFailure(op, tier string, _ error) {
	h.mu.Lock()
	h.failures = append(h.failures, op+"/"+tier)
	h.mu.Unlock()
}

type fixture struct {
	ctx   context.Context
	front *tiercache.FrontTier[string]
	acc   *spy
	auth  *spy
	hooks *hookLog
	trace *[]string
}

// reset clears the trace so a test can look at one operation.
func (fx *fixture) reset() {
	traceMu.Lock()
	*fx.trace = (*fx.trace)[:0]
	traceMu.Unlock()
}

func entry(key, value string) tiercache.Entry[string] {
	return tiercache.NewEntry(key, value)
}

func pinned(key, value string) tiercache.Entry[string] {
	e := tiercache.NewEntry(key, value)
	e.Pinned = true
	return e
}
