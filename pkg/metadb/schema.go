// Package metadb implements the persistent metadata engine (spec §4.2):
// schema versioning, the control/entry/digest/secondary-index tables,
// and the transactional set_meta/get_meta/mark_meta_deleted/remove_meta/
// list operations.
package metadb

import (
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
)

// Table names for schema v1.
const (
	TableControl = "control"
	TableEntry   = "entry"

	TableSize     = "size"
	TableCTime    = "ctime"
	TableMTime    = "mtime"
	TablePTime    = "ptime"
	TableDTime    = "dtime"
	TableETime    = "etime"
	TableType     = "type"
	TableLanguage = "language"
	TableCharset  = "charset"
	TableEncoding = "encoding"
)

// algoTable returns the per-algorithm digest-table name.
func algoTable(a nihash.Algorithm) string {
	return "digest_" + string(a)
}

// Control table keys.
const (
	ctlVersion    = "version"
	ctlCTime      = "ctime"
	ctlMTime      = "mtime"
	ctlExpiry     = "expiry"
	ctlObjects    = "objects"
	ctlDeleted    = "deleted"
	ctlBytes      = "bytes"
	ctlAlgorithms = "algorithms"
	ctlPrimary    = "primary"
)

// SchemaV1 is the full v1 schema for algos (the store's configured
// digest algorithms, in canonical order).
func SchemaV1(algos []nihash.Algorithm) kv.Schema {
	s := kv.Schema{
		TableControl: {Name: TableControl, Flags: kv.Default},
		TableEntry:   {Name: TableEntry, Flags: kv.IntegerKey},

		TableSize:  {Name: TableSize, Flags: kv.DupSort | kv.IntegerKey},
		TableCTime: {Name: TableCTime, Flags: kv.DupSort | kv.IntegerKey},
		TableMTime: {Name: TableMTime, Flags: kv.DupSort | kv.IntegerKey},
		TablePTime: {Name: TablePTime, Flags: kv.DupSort | kv.IntegerKey},
		TableDTime: {Name: TableDTime, Flags: kv.DupSort | kv.IntegerKey},
		TableETime: {Name: TableETime, Flags: kv.DupSort | kv.IntegerKey},

		TableType:     {Name: TableType, Flags: kv.DupSort},
		TableLanguage: {Name: TableLanguage, Flags: kv.DupSort},
		TableCharset:  {Name: TableCharset, Flags: kv.DupSort},
		TableEncoding: {Name: TableEncoding, Flags: kv.DupSort},
	}
	for _, a := range algos {
		name := algoTable(a)
		s[name] = kv.Table{Name: name, Flags: kv.DupSort}
	}
	return s
}

// discreteDimensions lists the table names for the four set-valued
// (ORed-within-dimension) list() predicates.
func discreteDimensions() []string {
	return []string{TableType, TableLanguage, TableCharset, TableEncoding}
}

// rangeDimensions lists the table names for the five range-valued list()
// predicates, excluding etime (which is not a public list() dimension —
// it is only driven internally by ExpiredCache).
func rangeDimensions() []string {
	return []string{TableSize, TableCTime, TableMTime, TablePTime, TableDTime}
}
