package metadb

import (
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// updateIndexes maintains every secondary index row affected by
// writing merged under id, removing old's rows first (spec §4.2 step
// 5: "remove old key→id, add new key→id; skip nil keys; cache records
// go in etime not dtime").
func (m *MetaDB) updateIndexes(tx kv.RwTx, old object.Object, oldFound bool, merged object.Object, id uint64) error {
	idVal := entryIDValue(id)

	// Range-indexed numeric dimensions: always present once an entry
	// exists (size/ctime/mtime/ptime are never "none" on a live or
	// tombstoned record).
	if err := reindexNum(tx, TableSize, oldFound, uint64(old.Size), uint64(merged.Size), idVal); err != nil {
		return err
	}
	if err := reindexNum(tx, TableCTime, oldFound, uint64(old.CTime), uint64(merged.CTime), idVal); err != nil {
		return err
	}
	if err := reindexNum(tx, TableMTime, oldFound, uint64(old.MTime), uint64(merged.MTime), idVal); err != nil {
		return err
	}
	if err := reindexNum(tx, TablePTime, oldFound, uint64(old.PTime), uint64(merged.PTime), idVal); err != nil {
		return err
	}

	// dtime / etime: mutually exclusive placement depending on the
	// cache bit.
	oldTable, oldKey, oldPresent := dtimeSlot(old, oldFound)
	newTable, newKey, newPresent := dtimeSlot(merged, true)
	if oldPresent && (!newPresent || oldTable != newTable || oldKey != newKey) {
		if err := tx.Delete(oldTable, numKey(oldKey), idVal); err != nil {
			return err
		}
	}
	if newPresent && (!oldPresent || oldTable != newTable || oldKey != newKey) {
		if err := tx.Put(newTable, numKey(newKey), idVal); err != nil {
			return err
		}
	}

	// Discrete token dimensions: indexed only when non-empty.
	if err := reindexToken(tx, TableType, oldFound, old.Type, merged.Type, idVal); err != nil {
		return err
	}
	if err := reindexToken(tx, TableCharset, oldFound, old.Charset, merged.Charset, idVal); err != nil {
		return err
	}
	if err := reindexToken(tx, TableLanguage, oldFound, old.Language, merged.Language, idVal); err != nil {
		return err
	}
	if err := reindexToken(tx, TableEncoding, oldFound, old.Encoding, merged.Encoding, idVal); err != nil {
		return err
	}

	return nil
}

// removeIndexes drops every secondary-index row old owns, for a
// record being purged entirely (Forget). Unlike updateIndexes it never
// adds replacement rows.
func (m *MetaDB) removeIndexes(tx kv.RwTx, old object.Object, id uint64) error {
	idVal := entryIDValue(id)

	for _, table := range []string{TableSize, TableCTime, TableMTime, TablePTime} {
		var v uint64
		switch table {
		case TableSize:
			v = uint64(old.Size)
		case TableCTime:
			v = uint64(old.CTime)
		case TableMTime:
			v = uint64(old.MTime)
		case TablePTime:
			v = uint64(old.PTime)
		}
		if err := tx.Delete(table, numKey(v), idVal); err != nil {
			return err
		}
	}

	if table, key, present := dtimeSlot(old, true); present {
		if err := tx.Delete(table, numKey(key), idVal); err != nil {
			return err
		}
	}

	for _, tok := range []struct {
		table string
		val   string
	}{
		{TableType, old.Type},
		{TableCharset, old.Charset},
		{TableLanguage, old.Language},
		{TableEncoding, old.Encoding},
	} {
		if tok.val == "" {
			continue
		}
		if err := tx.Delete(tok.table, []byte(tok.val), idVal); err != nil {
			return err
		}
	}

	return nil
}

func dtimeSlot(o object.Object, exists bool) (table string, key uint64, present bool) {
	if !exists || o.DTime.IsZero() {
		return "", 0, false
	}
	if o.Flags.Cache() {
		return TableETime, uint64(o.DTime), true
	}
	return TableDTime, uint64(o.DTime), true
}

func reindexNum(tx kv.RwTx, table string, oldFound bool, oldVal, newVal uint64, idVal []byte) error {
	if oldFound && oldVal == newVal {
		return nil
	}
	if oldFound {
		if err := tx.Delete(table, numKey(oldVal), idVal); err != nil {
			return err
		}
	}
	return tx.Put(table, numKey(newVal), idVal)
}

func reindexToken(tx kv.RwTx, table string, oldFound bool, oldVal, newVal string, idVal []byte) error {
	if oldFound && oldVal == newVal {
		return nil
	}
	if oldFound && oldVal != "" {
		if err := tx.Delete(table, []byte(oldVal), idVal); err != nil {
			return err
		}
	}
	if newVal != "" {
		return tx.Put(table, []byte(newVal), idVal)
	}
	return nil
}

// applyCounterDelta implements the counter-delta table from spec §4.2,
// generalized to the cache bucket (spec §8 invariant 3): live,
// tombstone, and cache are mutually exclusive, so a transition simply
// un-counts whatever the old state counted and counts whatever the
// new state counts. This covers every old/new pairing uniformly,
// including the ones spec.md's table never enumerates because it
// predates the cache bucket — cache<->live and cache<->tombstone.
func (m *MetaDB) applyCounterDelta(tx kv.RwTx, found bool, oldState, newState lifecycleState, oldSize, newSize uint64) error {
	if !found {
		if err := m.addControlUint64(tx, ctlObjects, 1); err != nil {
			return err
		}
		switch newState {
		case stateTombstone:
			return m.addControlUint64(tx, ctlDeleted, 1)
		case stateLive:
			return m.addControlUint64(tx, ctlBytes, int64(newSize))
		case stateCache:
			// neither counter moves for a brand-new cache record
		}
		return nil
	}

	if oldState == newState {
		return nil
	}

	switch oldState {
	case stateLive:
		if err := m.addControlUint64(tx, ctlBytes, -int64(oldSize)); err != nil {
			return err
		}
	case stateTombstone:
		if err := m.addControlUint64(tx, ctlDeleted, -1); err != nil {
			return err
		}
	case stateCache:
		// not counted; nothing to remove
	}

	switch newState {
	case stateLive:
		if err := m.addControlUint64(tx, ctlBytes, int64(newSize)); err != nil {
			return err
		}
	case stateTombstone:
		if err := m.addControlUint64(tx, ctlDeleted, 1); err != nil {
			return err
		}
	case stateCache:
		// not counted; nothing to add
	}
	return nil
}
