package sloghook

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	PromotedEvery uint64
	RejectedEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	promotedCtr atomic.Uint64
	rejectedCtr atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.ShortHash(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Promoted(key string) {
	if h.l == nil || !sample(h.opts.PromotedEvery, &h.promotedCtr) {
		return
	}
	h.l.Debug("tiercache.promoted", "key", h.redact(key))
}

func (h *Hooks) AdmissionRejected(key string) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Info("tiercache.admission_rejected", "key", h.redact(key))
}

func (h *Hooks) PinEnforced(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.pin_enforced", "key", h.redact(key))
}

func (h *Hooks) TierFailure(op, tier string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tiercache.tier_failure",
		"op", op,
		"tier", tier,
		"err", err)
}
