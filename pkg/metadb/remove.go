package metadb

import (
	"context"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// MarkDeleted turns a live record into a tombstone (spec §4.2
// mark_meta_deleted): it sets dtime, clears the cache bit, and moves
// its dtime-index row into TableDTime. Deleting an already-tombstoned
// or absent record is a no-op; deleting a cache record clears its
// cache bit and leaves it a plain tombstone at the supplied time
// rather than the cache expiry.
func (m *MetaDB) MarkDeleted(ctx context.Context, id uint64, when object.Timestamp) (object.Object, bool, error) {
	if m.legacy {
		return object.Object{}, false, dgtserr.ErrLegacySchemaReadOnly
	}

	var result object.Object
	var found bool

	err := m.db.Update(ctx, func(tx kv.RwTx) error {
		old, ok, err := m.loadEntry(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		if !old.Flags.Cache() && !old.DTime.IsZero() {
			result = old
			return nil
		}

		if when.IsZero() {
			when = object.Now()
		}

		merged := old
		merged.Flags = old.Flags.WithCache(false)
		merged.DTime = when

		oldState := classifyState(old)
		newState := classifyState(merged)

		if err := m.updateIndexes(tx, old, true, merged, id); err != nil {
			return err
		}
		if err := m.writeEntry(tx, id, merged); err != nil {
			return err
		}
		if err := m.applyCounterDelta(tx, true, oldState, newState, old.Size, merged.Size); err != nil {
			return err
		}
		if err := m.touchControlMTime(tx); err != nil {
			return err
		}

		merged.EntryID = id
		result = merged
		return nil
	})
	if err != nil {
		return object.Object{}, false, err
	}
	return result, found, nil
}

// Forget purges a record entirely (spec §4.2 remove_meta): the entry
// row, every secondary-index row, and every digest-table row it owns.
// Unlike MarkDeleted this is not recorded as a tombstone. New ids are
// allocated as the current maximum plus one, so a forgotten id that
// was the highest in the table is handed out again by the next insert.
func (m *MetaDB) Forget(ctx context.Context, id uint64) (bool, error) {
	if m.legacy {
		return false, dgtserr.ErrLegacySchemaReadOnly
	}

	var found bool

	err := m.db.Update(ctx, func(tx kv.RwTx) error {
		old, ok, err := m.loadEntry(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true

		idVal := entryIDValue(id)

		for _, d := range old.Digests {
			ids, err := lookupDigest(tx, d)
			if err != nil {
				return err
			}
			for _, owner := range ids {
				if owner != id {
					return dgtserr.NewCorruptStateError("digest row owned by a different entry during Forget", nil)
				}
			}
			if err := tx.Delete(algoTable(d.Algo), d.Raw, idVal); err != nil {
				return err
			}
		}

		if err := m.removeIndexes(tx, old, id); err != nil {
			return err
		}
		if err := tx.Delete(TableEntry, entryIDKey(id), nil); err != nil {
			return err
		}

		if err := m.addControlUint64(tx, ctlObjects, -1); err != nil {
			return err
		}
		switch classifyState(old) {
		case stateTombstone:
			if err := m.addControlUint64(tx, ctlDeleted, -1); err != nil {
				return err
			}
		case stateLive:
			if err := m.addControlUint64(tx, ctlBytes, -int64(old.Size)); err != nil {
				return err
			}
		case stateCache:
			// not counted; nothing to remove
		}
		return m.touchControlMTime(tx)
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
