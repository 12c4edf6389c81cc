package metadb

import "encoding/binary"

// entryIDKey encodes an entry-id as the native-endian key required by
// tables opened with the IntegerKey flag (mdbx's integer key
// comparator assumes native byte order).
func entryIDKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, id)
	return b
}

func decodeEntryIDKey(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b)
}

// entryIDValue encodes an entry-id as a value within a DupSort table;
// DupSort tables order values by memcmp, so values are always
// big-endian here regardless of the key's own encoding, to get
// ascending entry-id order among duplicates.
func entryIDValue(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeEntryIDValue(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// numKey encodes a uint64 dimension value (size, or a Timestamp cast to
// uint64) as the native-endian key used by the range-indexed secondary
// tables.
func numKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, v)
	return b
}

func decodeNumKey(b []byte) uint64 {
	return binary.NativeEndian.Uint64(b)
}
