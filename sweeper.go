package tiercache

import (
	"context"
	"sync"
	"time"
)

// Expirer is the part of a Tier a Sweeper drives.
type Expirer interface {
	ExpireElements(ctx context.Context) error
}

// Sweeper calls ExpireElements on a fixed interval until closed.
// Tiers expire lazily on access; a sweeper bounds how long dead entries
// keep occupying space when nobody reads them.
type Sweeper struct {
	t       Expirer
	log     Logger
	timeout time.Duration

	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewSweeper starts sweeping t every interval. Each pass runs under a
// context bounded by interval. interval must be positive.
func NewSweeper(t Expirer, interval time.Duration, log Logger) (*Sweeper, error) {
	if t == nil || interval <= 0 {
		return nil, ErrInvalidArgument
	}
	s := &Sweeper{
		t:       t,
		log:     coalesce[Logger](log, NopLogger{}),
		timeout: interval,
		ticker:  time.NewTicker(interval),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ticker.C:
				s.sweep()
			case <-s.stopCh:
				return
			}
		}
	}()
	return s, nil
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.t.ExpireElements(ctx); err != nil {
		s.log.Warn("expiry sweep failed", Fields{"err": err})
	}
}

// Close stops the sweeper and waits for an in-flight pass.
func (s *Sweeper) Close(_ context.Context) error {
	s.once.Do(func() {
		close(s.stopCh)
		s.ticker.Stop() // stop ticker before waiting
		s.wg.Wait()
	})
	return nil
}
