// Package kv declares a minimal transactional key-value abstraction
// over an LMDB-class engine: single writer, multiple readers, and
// dupsort secondary indexes (spec §4.2). It mirrors the table-config
// vocabulary of the teacher's erigon-lib/kv package (TableCfg,
// TableFlags{DupSort,IntegerKey}) so that pkg/metadb never talks to the
// concrete mdbx binding directly.
package kv

import "context"

// TableFlags describes the physical layout of one table. The bit
// values match erigon-lib/kv.TableFlags for continuity with the
// teacher's on-disk convention.
type TableFlags uint

const (
	// Default is a plain table: unique keys, arbitrary-length values.
	Default TableFlags = 0x00
	// DupSort allows multiple values per key, each (key,value) pair
	// unique and sorted; used for every secondary index in schema v1.
	DupSort TableFlags = 0x04
	// IntegerKey declares the table's keys as native-endian u64s,
	// enabling integer-ordered range cursors; used by `entry` and the
	// timestamp-indexed secondary tables.
	IntegerKey TableFlags = 0x08
)

// Table names one database within the environment.
type Table struct {
	Name  string
	Flags TableFlags
}

// Schema is the full set of tables an environment must open, keyed by
// name for convenient lookup.
type Schema map[string]Table

// Cursor iterates a table in key order.
type Cursor interface {
	// First positions at the first key, or returns (nil, nil, nil) if
	// the table is empty.
	First() (k, v []byte, err error)
	// Seek positions at the first key >= key.
	Seek(key []byte) (k, v []byte, err error)
	// Next advances to the following (key, value) pair.
	Next() (k, v []byte, err error)
	Close()
}

// DupCursor is a Cursor over a DupSort table, adding navigation within
// the set of values sharing one key.
type DupCursor interface {
	Cursor
	// SeekBothRange positions at the first value >= value for the
	// given key; it returns a nil value if the key is absent or has no
	// such value.
	SeekBothRange(key, value []byte) (v []byte, err error)
	// FirstDup positions at the first value of the current key.
	FirstDup() (v []byte, err error)
	// NextDup advances within the current key's duplicate values; it
	// returns (nil, nil, nil) when the current key's values are
	// exhausted.
	NextDup() (k, v []byte, err error)
	// NextNoDup advances to the first value of the next distinct key,
	// skipping any remaining duplicates of the current key.
	NextNoDup() (k, v []byte, err error)
}

// RwCursor is a Cursor that can also mutate the table at its current
// position.
type RwCursor interface {
	Cursor
	Put(key, val []byte) error
	// Delete removes the (key, value) pair matching both the given key
	// and value. Nothing is removed, and no error is returned, when no
	// stored pair matches both.
	Delete(key, val []byte) error
}

// RwDupCursor combines RwCursor and DupCursor.
type RwDupCursor interface {
	RwCursor
	DupCursor
}

// Tx is a read-only transaction observing one consistent snapshot.
type Tx interface {
	// GetOne returns the value for key in table, or nil if absent.
	GetOne(table string, key []byte) ([]byte, error)
	Cursor(table string) (Cursor, error)
	DupCursor(table string) (DupCursor, error)
}

// RwTx is the single write transaction active at any moment.
type RwTx interface {
	Tx
	Put(table string, key, val []byte) error
	Delete(table string, key, val []byte) error
	RwCursor(table string) (RwCursor, error)
	RwDupCursor(table string) (RwDupCursor, error)
}

// DB is an opened environment: one memory-mapped file backing every
// table in its Schema.
type DB interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx RwTx) error) error
	Close() error
}
