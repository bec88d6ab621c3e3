package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes values with fxamacker/cbor. The zero value is ready to use
// and writes Core Deterministic Encoding (RFC 8949 section 4.2.1): equal
// values always produce equal bytes, so a CBOR codec can back CodecEqual
// and a CodecCopier whose copies compare the same as their sources.
//
// UnsortedCBOR trades that guarantee for cheaper encoding of large maps.
// Times are written as RFC3339Nano text so no precision is lost.
type CBOR[V any] struct {
	enc cbor.EncMode // nil => deterministic
}

var _ Codec[struct{}] = CBOR[struct{}]{}

var (
	detEnc      = encMode(cbor.CoreDetEncOptions())
	unsortedEnc = encMode(cbor.PreferredUnsortedEncOptions())

	// Stored bytes come from Encode, so duplicate map keys mean corruption.
	cborDec = func() cbor.DecMode {
		dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
		if err != nil {
			panic(err)
		}
		return dm
	}()
)

func encMode(eo cbor.EncOptions) cbor.EncMode {
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// UnsortedCBOR returns a CBOR codec that keeps map keys in iteration order.
// Its output is not stable across calls and must not feed CodecEqual.
func UnsortedCBOR[V any]() CBOR[V] { return CBOR[V]{enc: unsortedEnc} }

// Deterministic reports whether equal values encode to equal bytes.
func (c CBOR[V]) Deterministic() bool { return c.enc == nil }

func (c CBOR[V]) Encode(v V) ([]byte, error) {
	if c.enc == nil {
		return detEnc.Marshal(v)
	}
	return c.enc.Marshal(v)
}

func (CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := cborDec.Unmarshal(b, &v)
	return v, err
}
