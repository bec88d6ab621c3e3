package wire

import (
	"time"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
)

// Marshal encodes e's value with c and frames it with its metadata.
func Marshal[V any](c codec.Codec[V], e tiercache.Entry[V]) ([]byte, error) {
	payload, err := c.Encode(e.Value)
	if err != nil {
		return nil, err
	}
	return Encode(Envelope{
		Key:            e.Key,
		Pinned:         e.Pinned,
		Eternal:        e.Eternal,
		CreatedAt:      Nanos(e.CreatedAt),
		LastAccessedAt: Nanos(e.LastAccessedAt),
		TTI:            int64(e.TTI),
		TTL:            int64(e.TTL),
		Payload:        payload,
	})
}

// Unmarshal reverses Marshal.
func Unmarshal[V any](c codec.Codec[V], b []byte) (tiercache.Entry[V], error) {
	env, err := Decode(b)
	if err != nil {
		return tiercache.Entry[V]{}, err
	}
	v, err := c.Decode(env.Payload)
	if err != nil {
		return tiercache.Entry[V]{}, err
	}
	return tiercache.Entry[V]{
		Key:            env.Key,
		Value:          v,
		Pinned:         env.Pinned,
		Eternal:        env.Eternal,
		CreatedAt:      Time(env.CreatedAt),
		LastAccessedAt: Time(env.LastAccessedAt),
		TTI:            time.Duration(env.TTI),
		TTL:            time.Duration(env.TTL),
	}, nil
}
