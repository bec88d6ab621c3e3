package tiercache

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument    = errors.New("tiercache: invalid argument")
	ErrDisposed           = errors.New("tiercache: tier disposed")
	ErrUnsupported        = errors.New("tiercache: operation not supported")
	ErrNoCopier           = errors.New("tiercache: copy on read/write requires a copier")
	ErrPinningUnsupported = errors.New("tiercache: tier does not support pinning")
)

// Tier names used in TierError.
const (
	TierAccelerator = "accelerator"
	TierAuthority   = "authority"
)

// TierError carries a failure raised by one of the composed tiers.
type TierError struct {
	Op   string
	Tier string
	Key  string
	Err  error
}

func (e *TierError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("tiercache: %s %q: %s tier: %v", e.Op, e.Key, e.Tier, e.Err)
	}
	return fmt.Sprintf("tiercache: %s: %s tier: %v", e.Op, e.Tier, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }

func invalidArg(op, what string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, op, what)
}
