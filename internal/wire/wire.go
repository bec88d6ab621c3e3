package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1

	flagPinned  byte = 1 << 0
	flagEternal byte = 1 << 1
)

var (
	ErrCorrupt = errors.New("tiercache: corrupt entry")
	magic4     = [...]byte{'T', 'I', 'E', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Envelope is an entry as byte-backed tiers store it. Times are unix nanos
// (0 => unset) so the frame has a fixed header.
type Envelope struct {
	Key            string
	Pinned         bool
	Eternal        bool
	CreatedAt      int64
	LastAccessedAt int64
	TTI            int64
	TTL            int64
	Payload        []byte
}

const header = 4 + 1 + 1 + 8*4 + 2

// Encode frames e:
//
//	magic(4) | ver(1) | flags(1) | created(i64 be) | accessed(i64 be) | tti(i64 be) | ttl(i64 be)
//	keyLen(u16 be) | key(keyLen) | vlen(u32 be) | payload(vlen)
func Encode(e Envelope) ([]byte, error) {
	if l := len(e.Key); l == 0 || l > 0xFFFF {
		return nil, ErrCorrupt
	}
	var buf bytes.Buffer
	buf.Grow(header + len(e.Key) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var flags byte
	if e.Pinned {
		flags |= flagPinned
	}
	if e.Eternal {
		flags |= flagEternal
	}
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	for _, n := range [...]int64{e.CreatedAt, e.LastAccessedAt, e.TTI, e.TTL} {
		binary.BigEndian.PutUint64(u8[:], uint64(n))
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
	buf.Write(u2[:])
	buf.WriteString(e.Key)

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses a frame written by Encode. Payload aliases b.
func Decode(b []byte) (Envelope, error) {
	if len(b) < header || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}
	flags := b[5]
	if flags&^(flagPinned|flagEternal) != 0 {
		return Envelope{}, ErrCorrupt
	}
	e := Envelope{
		Pinned:  flags&flagPinned != 0,
		Eternal: flags&flagEternal != 0,
	}

	off := 6
	nums := [...]*int64{&e.CreatedAt, &e.LastAccessedAt, &e.TTI, &e.TTL}
	for _, p := range nums {
		*p = int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
	}

	// keyLen
	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen == 0 || klen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	e.Key = string(b[off : off+klen])
	off += klen

	// vlen
	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // trailing bytes are corruption too
		return Envelope{}, ErrCorrupt
	}
	e.Payload = b[off : off+vlen]
	return e, nil
}

// Nanos converts t to the frame representation.
func Nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Time is the inverse of Nanos.
func Time(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
