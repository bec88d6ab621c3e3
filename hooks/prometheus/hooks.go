// Package promhook exports composer events as Prometheus counters.
package promhook

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name. Defaults to "tiercache".
	Namespace string
	// Name is added as the constant "cache" label.
	Name string
}

// Hooks counts events. Keys are never used as labels.
type Hooks struct {
	promoted  prometheus.Counter
	rejected  prometheus.Counter
	pins      prometheus.Counter
	failures  *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	sizeBytes *prometheus.GaugeVec
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(opts Options) *Hooks {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "tiercache"
	}
	var labels prometheus.Labels
	if opts.Name != "" {
		labels = prometheus.Labels{"cache": opts.Name}
	}
	f := promauto.With(reg)

	return &Hooks{
		promoted: f.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "promotions_total",
			Help:        "Authority hits copied into the accelerator",
			ConstLabels: labels,
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "admission_rejections_total",
			Help:        "Puts that skipped a full accelerator",
			ConstLabels: labels,
		}),
		pins: f.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "pin_enforcements_total",
			Help:        "Pinned entries removed from an authority that cannot pin",
			ConstLabels: labels,
		}),
		failures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Name:        "tier_failures_total",
				Help:        "Composed operations that failed inside a tier",
				ConstLabels: labels,
			},
			[]string{"op", "tier"},
		),
		entries: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Name:        "entries",
				Help:        "Entries held, by storage layer",
				ConstLabels: labels,
			},
			[]string{"layer"},
		),
		sizeBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Name:        "size_bytes",
				Help:        "Bytes held, by storage layer",
				ConstLabels: labels,
			},
			[]string{"layer"},
		),
	}
}

func (h *Hooks) Promoted(string)          { h.promoted.Inc() }
func (h *Hooks) AdmissionRejected(string) { h.rejected.Inc() }
func (h *Hooks) PinEnforced(string)       { h.pins.Inc() }
func (h *Hooks) TierFailure(op, tier string, _ error) {
	h.failures.WithLabelValues(op, tier).Inc()
}

// Sizer is the part of a tier ObserveSizes reads.
type Sizer interface {
	Sizes(ctx context.Context) (tiercache.Sizes, error)
}

// ObserveSizes samples t once and publishes its entry and byte gauges.
func (h *Hooks) ObserveSizes(ctx context.Context, t Sizer) error {
	s, err := t.Sizes(ctx)
	if err != nil {
		return err
	}
	h.entries.WithLabelValues("logical").Set(float64(s.Logical))
	h.entries.WithLabelValues("pinned").Set(float64(s.Pinned))
	h.entries.WithLabelValues("in_memory").Set(float64(s.InMemory))
	h.entries.WithLabelValues("off_heap").Set(float64(s.OffHeap))
	h.entries.WithLabelValues("on_disk").Set(float64(s.OnDisk))
	h.entries.WithLabelValues("clustered").Set(float64(s.Clustered))

	h.sizeBytes.WithLabelValues("in_memory").Set(float64(s.InMemoryBytes))
	h.sizeBytes.WithLabelValues("off_heap").Set(float64(s.OffHeapBytes))
	h.sizeBytes.WithLabelValues("on_disk").Set(float64(s.OnDiskBytes))
	h.sizeBytes.WithLabelValues("clustered").Set(float64(s.ClusteredBytes))
	return nil
}
