// Package codec converts cached values to and from bytes.
//
// Codecs serve two purposes in tiercache: byte-backed tiers (bigcache,
// redis, mongo) store encoded values, and CodecCopier isolates values by
// round-tripping them. A codec used for isolation must decode into a value
// that shares no memory with the one encoded.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
