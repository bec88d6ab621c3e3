package tiercache

import (
	"bytes"
	"reflect"

	"github.com/unkn0wn-root/tiercache/codec"
)

// Copier produces independent copies of entries crossing the tier boundary.
// Implementations must be stateless or otherwise safe for concurrent use.
type Copier[V any] interface {
	CopyForWrite(e Entry[V]) (Entry[V], error)
	CopyForRead(e Entry[V]) (Entry[V], error)
}

// CodecCopier copies values by round-tripping them through a Codec.
// Both directions produce a fresh decode, so nothing aliases the input.
type CodecCopier[V any] struct {
	Codec codec.Codec[V]
}

var _ Copier[struct{}] = CodecCopier[struct{}]{}

func (c CodecCopier[V]) CopyForWrite(e Entry[V]) (Entry[V], error) { return c.roundTrip(e) }
func (c CodecCopier[V]) CopyForRead(e Entry[V]) (Entry[V], error)  { return c.roundTrip(e) }

func (c CodecCopier[V]) roundTrip(e Entry[V]) (Entry[V], error) {
	b, err := c.Codec.Encode(e.Value)
	if err != nil {
		return Entry[V]{}, err
	}
	v, err := c.Codec.Decode(b)
	if err != nil {
		return Entry[V]{}, err
	}
	e.Value = v
	return e, nil
}

// FuncCopier copies values with a caller-provided clone func.
type FuncCopier[V any] func(V) V

func (f FuncCopier[V]) CopyForWrite(e Entry[V]) (Entry[V], error) {
	e.Value = f(e.Value)
	return e, nil
}

func (f FuncCopier[V]) CopyForRead(e Entry[V]) (Entry[V], error) {
	e.Value = f(e.Value)
	return e, nil
}

// Isolation decides when entries are copied on their way in and out.
// It holds no mutable state and is safe to share.
type Isolation[V any] struct {
	copyOnRead  bool
	copyOnWrite bool
	copier      Copier[V]
}

// NewIsolation returns ErrNoCopier when copying is requested without a copier.
func NewIsolation[V any](copyOnRead, copyOnWrite bool, copier Copier[V]) (Isolation[V], error) {
	if (copyOnRead || copyOnWrite) && copier == nil {
		return Isolation[V]{}, ErrNoCopier
	}
	return Isolation[V]{copyOnRead: copyOnRead, copyOnWrite: copyOnWrite, copier: copier}, nil
}

// Active reports whether any copying happens.
func (i Isolation[V]) Active() bool { return i.copyOnRead || i.copyOnWrite }

// ForRead is applied to every entry handed back to a caller.
// With only copy-on-read the entry is isolated in both directions so the
// returned copy cannot alias what the tier stores.
func (i Isolation[V]) ForRead(e Entry[V]) (Entry[V], error) {
	switch {
	case i.copyOnRead && i.copyOnWrite:
		return i.copier.CopyForRead(e)
	case i.copyOnRead:
		w, err := i.copier.CopyForWrite(e)
		if err != nil {
			return Entry[V]{}, err
		}
		return i.copier.CopyForRead(w)
	default:
		return e, nil
	}
}

// ForWrite is applied once to every entry a caller hands in.
func (i Isolation[V]) ForWrite(e Entry[V]) (Entry[V], error) {
	switch {
	case i.copyOnRead && i.copyOnWrite:
		return i.copier.CopyForWrite(e)
	case i.copyOnWrite:
		w, err := i.copier.CopyForWrite(e)
		if err != nil {
			return Entry[V]{}, err
		}
		return i.copier.CopyForRead(w)
	default:
		return e, nil
	}
}

// ValueEqual compares values with reflect.DeepEqual.
func ValueEqual[V any](a, b Entry[V]) bool {
	return reflect.DeepEqual(a.Value, b.Value)
}

// CodecEqual compares the encoded form of both values. Encoding failures
// compare unequal.
func CodecEqual[V any](c codec.Codec[V]) Comparator[V] {
	return func(a, b Entry[V]) bool {
		ab, err := c.Encode(a.Value)
		if err != nil {
			return false
		}
		bb, err := c.Encode(b.Value)
		if err != nil {
			return false
		}
		return bytes.Equal(ab, bb)
	}
}
