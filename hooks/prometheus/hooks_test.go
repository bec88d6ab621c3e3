package promhook

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
)

type sizer struct {
	s   tiercache.Sizes
	err error
}

func (z sizer) Sizes(context.Context) (tiercache.Sizes, error) { return z.s, z.err }

func TestHooksCountEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(Options{Registerer: reg, Name: "users"})

	h.Promoted("a")
	h.Promoted("b")
	h.AdmissionRejected("c")
	h.PinEnforced("d")
	h.TierFailure("put", "authority", errors.New("x"))
	h.TierFailure("put", "authority", errors.New("y"))
	h.TierFailure("get", "accelerator", errors.New("z"))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.promoted))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.rejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.pins))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.failures.WithLabelValues("put", "authority")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.failures.WithLabelValues("get", "accelerator")))

	n, err := testutil.GatherAndCount(reg, "tiercache_tier_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHooksSeparateRegistries(t *testing.T) {
	a := New(Options{Registerer: prometheus.NewRegistry()})
	b := New(Options{Registerer: prometheus.NewRegistry(), Namespace: "other"})

	a.Promoted("k")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.promoted))
	assert.Zero(t, testutil.ToFloat64(b.promoted))
}

func TestObserveSizes(t *testing.T) {
	h := New(Options{Registerer: prometheus.NewRegistry()})

	err := h.ObserveSizes(context.Background(), sizer{s: tiercache.Sizes{
		Logical: 7, Pinned: 2, InMemory: 5, Clustered: 7, ClusteredBytes: 700,
	}})
	require.NoError(t, err)

	assert.Equal(t, 7.0, testutil.ToFloat64(h.entries.WithLabelValues("logical")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.entries.WithLabelValues("pinned")))
	assert.Equal(t, 5.0, testutil.ToFloat64(h.entries.WithLabelValues("in_memory")))
	assert.Equal(t, 700.0, testutil.ToFloat64(h.sizeBytes.WithLabelValues("clustered")))

	boom := errors.New("boom")
	assert.ErrorIs(t, h.ObserveSizes(context.Background(), sizer{err: boom}), boom)
}
