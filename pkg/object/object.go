// Package object implements the in-memory Object record (spec §3) and
// its packed on-disk encoding (spec §4.2).
package object

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dgtstore/dgtstore/pkg/nihash"
)

// Object is the in-memory representation of one stored item: its
// digests, size, timestamps, user-manipulable attributes, and
// validation flags.
type Object struct {
	EntryID uint64

	Digests nihash.Set
	Size    uint64

	CTime Timestamp
	MTime Timestamp
	PTime Timestamp
	DTime Timestamp // zero means "none"; live unless Flags.Cache() or DTime set

	Type     string
	Charset  string
	Language string
	Encoding string

	Flags Flags

	// Fresh is set by Store.Add to true iff this call produced a new
	// or changed record (spec §4.4). It is not part of the persisted
	// record and is never packed.
	Fresh bool
}

// Digest returns the digest for algo, and whether it is present.
func (o Object) Digest(algo nihash.Algorithm) (nihash.Digest, bool) {
	d, ok := o.Digests[algo]
	return d, ok
}

// IsLive reports whether o is a live (non-tombstone, non-cache-expired)
// object: DTime is unset.
func (o Object) IsLive() bool {
	return o.DTime.IsZero()
}

// IsTombstone reports whether o is a tombstone: DTime set and the
// cache bit is not.
func (o Object) IsTombstone() bool {
	return !o.DTime.IsZero() && !o.Flags.Cache()
}

// IsCache reports whether o is a cache entry (cache bit set).
func (o Object) IsCache() bool {
	return o.Flags.Cache()
}

// packedFixedLen is the byte length of the fixed-width portion (size +
// 4 timestamps + flags) of a packed record, excluding digests and the
// NUL-terminated strings.
const packedFixedLen = 8 + 8*4 + 2

// Pack serializes o into the fixed-order packed entry record described
// by spec §4.2: digests (in algos order) + size + ctime + mtime + ptime
// + dtime + flags + NUL-terminated type/language/charset/encoding.
//
// algos must be the store's configured algorithm list, in canonical
// order; every algorithm in algos must have a corresponding digest in
// o.Digests or Pack panics (callers are expected to have validated this
// already via a scan).
func Pack(o Object, algos []nihash.Algorithm) []byte {
	var buf bytes.Buffer
	for _, a := range algos {
		d, ok := o.Digests[a]
		if !ok || len(d.Raw) != a.Size() {
			panic(fmt.Sprintf("object: Pack: missing or malformed digest for %s", a))
		}
		buf.Write(d.Raw)
	}

	var fixed [packedFixedLen]byte
	binary.BigEndian.PutUint64(fixed[0:8], o.Size)
	binary.BigEndian.PutUint64(fixed[8:16], uint64(o.CTime))
	binary.BigEndian.PutUint64(fixed[16:24], uint64(o.MTime))
	binary.BigEndian.PutUint64(fixed[24:32], uint64(o.PTime))
	binary.BigEndian.PutUint64(fixed[32:40], uint64(o.DTime))
	binary.BigEndian.PutUint16(fixed[40:42], uint16(o.Flags))
	buf.Write(fixed[:])

	buf.WriteString(o.Type)
	buf.WriteByte(0)
	buf.WriteString(o.Language)
	buf.WriteByte(0)
	buf.WriteString(o.Charset)
	buf.WriteByte(0)
	buf.WriteString(o.Encoding)
	buf.WriteByte(0)

	return buf.Bytes()
}

// Unpack reverses Pack, given the same algos list used to pack rec.
func Unpack(rec []byte, algos []nihash.Algorithm) (Object, error) {
	var o Object
	o.Digests = make(nihash.Set, len(algos))

	off := 0
	for _, a := range algos {
		n := a.Size()
		if off+n > len(rec) {
			return Object{}, fmt.Errorf("object: Unpack: truncated digest for %s", a)
		}
		raw := make([]byte, n)
		copy(raw, rec[off:off+n])
		o.Digests[a] = nihash.Digest{Algo: a, Raw: raw}
		off += n
	}

	if off+packedFixedLen > len(rec) {
		return Object{}, fmt.Errorf("object: Unpack: truncated fixed section")
	}
	fixed := rec[off : off+packedFixedLen]
	o.Size = binary.BigEndian.Uint64(fixed[0:8])
	o.CTime = Timestamp(binary.BigEndian.Uint64(fixed[8:16]))
	o.MTime = Timestamp(binary.BigEndian.Uint64(fixed[16:24]))
	o.PTime = Timestamp(binary.BigEndian.Uint64(fixed[24:32]))
	o.DTime = Timestamp(binary.BigEndian.Uint64(fixed[32:40]))
	o.Flags = Flags(binary.BigEndian.Uint16(fixed[40:42]))
	off += packedFixedLen

	rest := rec[off:]
	fields := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return Object{}, fmt.Errorf("object: Unpack: missing NUL terminator in string field %d", i)
		}
		fields = append(fields, string(rest[:nul]))
		rest = rest[nul+1:]
	}
	o.Type, o.Language, o.Charset, o.Encoding = fields[0], fields[1], fields[2], fields[3]

	return o, nil
}
