package tiercache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The composer calls them on hot paths, sometimes while holding key locks.
type Hooks interface {
	// An authority hit was copied into the accelerator on read.
	Promoted(key string)

	// A put skipped the accelerator because it reported full.
	AdmissionRejected(key string)

	// A pinned entry was removed from an authority that cannot pin.
	PinEnforced(key string)

	// A composed operation failed inside one tier.
	// tier ∈ {"accelerator", "authority"}
	TierFailure(op, tier string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Promoted(string)                   {}
func (NopHooks) AdmissionRejected(string)          {}
func (NopHooks) PinEnforced(string)                {}
func (NopHooks) TierFailure(string, string, error) {}
