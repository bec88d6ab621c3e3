package codec

import "fmt"

// Limit wraps another codec and refuses payloads larger than MaxEncode on the
// way in or MaxDecode on the way out. A limit <= 0 is disabled.
//
// Typical use: keep oversized values out of a shared authority tier, and
// protect readers against foreign writes in that tier.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxEncode int
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.MaxEncode > 0 && len(b) > c.MaxEncode {
		return nil, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxEncode)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
