package metadb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// ControlOnlySchema is the minimal schema used to peek at a store's
// control.version key before deciding whether to open it as v0 or v1
// (spec §9 "Schema versioning": "selected at open time" by inspecting
// the control table, which must itself already be readable under
// either schema).
func ControlOnlySchema() kv.Schema {
	return kv.Schema{TableControl: {Name: TableControl, Flags: kv.Default}}
}

// PeekVersion reads control.version without assuming any other table
// exists. An absent key yields "", which a never-initialized store and
// a v0 store both produce.
func PeekVersion(ctx context.Context, db kv.DB) (string, error) {
	var version string
	err := db.View(ctx, func(tx kv.Tx) error {
		raw, err := tx.GetOne(TableControl, []byte(ctlVersion))
		if err != nil {
			return err
		}
		version = string(raw)
		return nil
	})
	return version, err
}

// SchemaV0 is the legacy layout: a single entry table keyed directly
// by the primary digest's raw bytes (spec §4.7: "primary-digest-keyed
// entry table, no separate per-algorithm digest tables beyond primary,
// no ptime/etime tables").
func SchemaV0() kv.Schema {
	return kv.Schema{
		TableControl: {Name: TableControl, Flags: kv.Default},
		TableEntry:   {Name: TableEntry, Flags: kv.Default},
	}
}

// packV0 / unpackV0 mirror object.Pack/Unpack but for the narrower v0
// record: no ptime, single digest (the table key itself, not stored in
// the value).
func packV0(o object.Object) []byte {
	buf := make([]byte, 0, 8+8*3+2+len(o.Type)+len(o.Language)+len(o.Charset)+len(o.Encoding)+4)
	var n [8]byte

	binary.BigEndian.PutUint64(n[:], o.Size)
	buf = append(buf, n[:]...)
	binary.BigEndian.PutUint64(n[:], uint64(o.CTime))
	buf = append(buf, n[:]...)
	binary.BigEndian.PutUint64(n[:], uint64(o.MTime))
	buf = append(buf, n[:]...)
	binary.BigEndian.PutUint64(n[:], uint64(o.DTime))
	buf = append(buf, n[:]...)

	var f [2]byte
	binary.BigEndian.PutUint16(f[:], uint16(o.Flags))
	buf = append(buf, f[:]...)

	for _, s := range []string{o.Type, o.Language, o.Charset, o.Encoding} {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return buf
}

func unpackV0(rec []byte, primary nihash.Algorithm, key []byte) (object.Object, error) {
	const fixed = 8*4 + 2
	if len(rec) < fixed {
		return object.Object{}, dgtserr.NewCorruptStateError(fmt.Sprintf("v0 record too short: %d bytes", len(rec)), nil)
	}
	var o object.Object
	o.Digests = nihash.Set{primary: {Algo: primary, Raw: append([]byte(nil), key...)}}
	o.Size = binary.BigEndian.Uint64(rec[0:8])
	o.CTime = object.Timestamp(binary.BigEndian.Uint64(rec[8:16]))
	o.MTime = object.Timestamp(binary.BigEndian.Uint64(rec[16:24]))
	o.DTime = object.Timestamp(binary.BigEndian.Uint64(rec[24:32]))
	o.PTime = o.MTime
	o.Flags = object.Flags(binary.BigEndian.Uint16(rec[32:34]))

	strs, err := splitNulStrings(rec[34:], 4)
	if err != nil {
		return object.Object{}, err
	}
	o.Type, o.Language, o.Charset, o.Encoding = strs[0], strs[1], strs[2], strs[3]
	return o, nil
}

func splitNulStrings(rec []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(rec) && len(out) < n; i++ {
		if rec[i] == 0 {
			out = append(out, string(rec[start:i]))
			start = i + 1
		}
	}
	if len(out) != n {
		return nil, dgtserr.NewCorruptStateError("v0 record missing terminated strings", nil)
	}
	return out, nil
}

// OpenLegacy opens a v0 store read-only. Any write method on the
// returned MetaDB fails with dgtserr.ErrLegacySchemaReadOnly; use
// UpgradeToV1 to migrate forward.
func OpenLegacy(ctx context.Context, db kv.DB, primary nihash.Algorithm) (*MetaDB, error) {
	m := &MetaDB{db: db, algos: []nihash.Algorithm{primary}, primary: primary, legacy: true}
	err := db.View(ctx, func(tx kv.Tx) error {
		raw, err := tx.GetOne(TableControl, []byte(ctlVersion))
		if err != nil {
			return err
		}
		if string(raw) == "1" {
			return dgtserr.NewCorruptStateError("schema v1 store opened via OpenLegacy; use Open", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMetaV0 reads a v0 record by its primary digest.
func (m *MetaDB) GetMetaV0(ctx context.Context, primaryDigest []byte) (object.Object, bool, error) {
	var result object.Object
	var found bool
	err := m.db.View(ctx, func(tx kv.Tx) error {
		raw, err := tx.GetOne(TableEntry, primaryDigest)
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}
		result, err = unpackV0(raw, m.primary, primaryDigest)
		found = err == nil
		return err
	})
	if err != nil {
		return object.Object{}, false, err
	}
	return result, found, nil
}

// ListV0 walks the entire v0 entry table applying filter, since v0 has
// no secondary indexes to drive a narrower scan.
func (m *MetaDB) ListV0(ctx context.Context, filter Filter) ([]object.Object, error) {
	var out []object.Object
	err := m.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(TableEntry)
		if err != nil {
			return err
		}
		defer c.Close()

		k, v, err := c.First()
		if err != nil {
			return err
		}
		for k != nil {
			o, err := unpackV0(v, m.primary, k)
			if err != nil {
				return err
			}
			if matches(o, filter) {
				out = append(out, o)
			}
			k, v, err = c.Next()
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// UpgradeToV1 migrates every v0 record into a fresh v1 store by
// writing it verbatim through insertRaw (index and counter bookkeeping
// only, no SetMeta merge), one write transaction per batch of
// batchSize records.
func UpgradeToV1(ctx context.Context, legacy *MetaDB, target *MetaDB, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	migrated := 0

	var cursorErr error
	var batch []object.Object

	flush := func() error {
		return target.db.Update(ctx, func(tx kv.RwTx) error {
			for _, o := range batch {
				raw := object.Object{
					Digests:  o.Digests.Clone(),
					Size:     o.Size,
					CTime:    o.CTime,
					MTime:    o.MTime,
					PTime:    o.PTime,
					DTime:    o.DTime,
					Type:     o.Type,
					Charset:  o.Charset,
					Language: o.Language,
					Encoding: o.Encoding,
					Flags:    o.Flags,
				}
				if err := target.insertRaw(tx, raw); err != nil {
					return err
				}
				migrated++
			}
			if err := target.touchControlMTime(tx); err != nil {
				return err
			}
			batch = batch[:0]
			return nil
		})
	}

	err := legacy.db.View(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(TableEntry)
		if err != nil {
			return err
		}
		defer c.Close()

		k, v, err := c.First()
		if err != nil {
			return err
		}
		for k != nil {
			o, err := unpackV0(v, legacy.primary, k)
			if err != nil {
				return err
			}
			batch = append(batch, o)
			if len(batch) >= batchSize {
				if cursorErr = flush(); cursorErr != nil {
					return cursorErr
				}
			}
			k, v, err = c.Next()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return migrated, err
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return migrated, err
		}
	}
	return migrated, nil
}
