// Package eviction holds the eviction orders a bounded tier can use to pick
// a victim when it runs out of room.
//
// A Policy only tracks keys; the owning tier stores the entries and decides
// which keys are eligible (pinned entries are never handed to a Policy).
// Policies are not safe for concurrent use: the tier serializes access.
package eviction

import (
	"fmt"
	"strings"
)

// Kind names an eviction order.
type Kind string

const (
	None Kind = ""
	LRU  Kind = "LRU"
	LFU  Kind = "LFU"
	FIFO Kind = "FIFO"
)

func (k Kind) String() string {
	if k == None {
		return "NONE"
	}
	return string(k)
}

// ParseKind accepts the case-insensitive names LRU, LFU and FIFO.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LRU":
		return LRU, nil
	case "LFU":
		return LFU, nil
	case "FIFO":
		return FIFO, nil
	}
	return None, fmt.Errorf("eviction: unknown policy %q", s)
}

// Policy tracks the access order of a set of keys.
type Policy interface {
	// Kind reports which order this policy implements.
	Kind() Kind
	// Touch records a read of k. Unknown keys are ignored.
	Touch(k string)
	// Add starts tracking k. Adding a tracked key is a no-op.
	Add(k string)
	// Remove stops tracking k.
	Remove(k string)
	// Victim removes and returns the next key to evict; ok=false when empty.
	Victim() (k string, ok bool)
	// Len is the number of tracked keys.
	Len() int
}

// New returns an empty policy of the given kind. None falls back to LRU.
func New(k Kind) (Policy, error) {
	switch k {
	case LRU, None:
		return newLRU(), nil
	case LFU:
		return newLFU(), nil
	case FIFO:
		return newFIFO(), nil
	}
	return nil, fmt.Errorf("eviction: unknown policy %q", string(k))
}
