package tiercache

import "fmt"

// New composes accelerator over authority with every knob taken from opts.
func New[V any](accelerator, authority Tier[V], opts Options[V]) (*FrontTier[V], error) {
	return newFrontTier(accelerator, authority, opts)
}

// NewAcceleratedDurable puts a bounded fast tier in front of a slower tier
// that owns the full keyspace (memory over disk, memory over cluster).
// The authority is assumed unable to pin and owns the locks.
func NewAcceleratedDurable[V any](accelerator, authority Tier[V], opts Options[V]) (*FrontTier[V], error) {
	opts.AuthorityHandlesPinning = false
	opts.Locks = authority
	return newFrontTier(accelerator, authority, opts)
}

// NewPassthrough fronts a self-sufficient tier with a NopTier. The authority
// must retain pinned entries itself.
func NewPassthrough[V any](authority Tier[V], opts Options[V]) (*FrontTier[V], error) {
	if authority == nil {
		return nil, fmt.Errorf("tiercache: authority tier is required")
	}
	p, ok := authority.(Pinner)
	if !ok || !p.SupportsPinning() {
		return nil, fmt.Errorf("%w: %T", ErrPinningUnsupported, authority)
	}
	opts.AuthorityHandlesPinning = true
	opts.Locks = authority
	return newFrontTier[V](NopTier[V]{}, authority, opts)
}
