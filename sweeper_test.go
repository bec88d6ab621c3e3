package tiercache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireElements(ctx context.Context) error {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("sweep without deadline")
	}
	return c.err
}

type warnLogger struct {
	NopLogger
	mu    sync.Mutex
	warns []string
}

func (w *warnLogger) Warn(msg string, _ Fields) {
	w.mu.Lock()
	w.warns = append(w.warns, msg)
	w.mu.Unlock()
}

func (w *warnLogger) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.warns)
}

func TestSweeperRunsUntilClosed(t *testing.T) {
	exp := &countingExpirer{}
	s, err := NewSweeper(exp, 10*time.Millisecond, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return exp.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	n := exp.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, exp.calls.Load())
}

func TestSweeperLogsFailures(t *testing.T) {
	exp := &countingExpirer{err: errors.New("down")}
	log := &warnLogger{}
	s, err := NewSweeper(exp, 10*time.Millisecond, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	assert.Eventually(t, func() bool { return log.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSweeperRejectsBadArguments(t *testing.T) {
	_, err := NewSweeper(nil, time.Second, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewSweeper(&countingExpirer{}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
