package metadb

import (
	"context"
	"time"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// SetMetaInput carries the fields a caller may supply to SetMeta. Empty
// string / zero Timestamp consistently mean "not supplied" throughout,
// matching the packed record's own "empty decodes to none" convention
// (spec §4.2).
type SetMetaInput struct {
	Digests  nihash.Set
	Size     uint64
	MTime    object.Timestamp
	Type     string
	Charset  string
	Language string
	Encoding string

	// Cache is the incoming record's cache-bit (is_cache in spec §4.2
	// step 3).
	Cache bool
	// DTime/DTimeSupplied represent an explicit tombstone/expiry
	// request. Store.Add sets DTimeSupplied only for a cache write with
	// an explicit ETime; MarkDeleted sets dtime itself without SetMeta.
	DTime         object.Timestamp
	DTimeSupplied bool

	Preserve bool
}

// SetMeta is the transactional write at the heart of the engine (spec
// §4.2 set_meta). It resolves or allocates the entry-id, merges fields,
// runs the cache/tombstone state machine, maintains every secondary
// index, updates counters, and returns the resulting record plus
// whether anything actually changed (the "fresh" signal store.Add
// surfaces to callers).
func (m *MetaDB) SetMeta(ctx context.Context, in SetMetaInput) (object.Object, bool, error) {
	if m.legacy {
		return object.Object{}, false, dgtserr.ErrLegacySchemaReadOnly
	}

	var result object.Object
	var changed bool

	err := m.db.Update(ctx, func(tx kv.RwTx) error {
		id, found, err := m.resolveEntryID(tx, in.Digests)
		if err != nil {
			return err
		}

		now := object.Now()

		var old object.Object
		if found {
			old, found, err = m.loadEntry(tx, id)
			if err != nil {
				return err
			}
		}
		if found {
			// Every incoming digest must agree with the stored record it
			// resolved to; a mismatch means two distinct blobs share a digest.
			for a, d := range in.Digests {
				if od, ok := old.Digests[a]; ok && !bytesEqual(od.Raw, d.Raw) {
					return dgtserr.ErrDigestCollision
				}
			}
		}
		if !found {
			id, err = nextEntryID(tx)
			if err != nil {
				return err
			}
		}

		if err := checkCollisions(tx, in.Digests, id, !found); err != nil {
			return err
		}

		expiry, err := m.expiry(tx)
		if err != nil {
			return err
		}

		merged := mergeRecord(old, found, in, now, expiry)

		if found {
			oldPacked := object.Pack(old, m.algos)
			tentative := merged
			tentative.PTime = old.PTime
			if bytesEqualSlices(object.Pack(tentative, m.algos), oldPacked) {
				result = old
				changed = false
				return nil
			}
			merged.PTime = now
		} else {
			merged.PTime = now
		}

		oldState := classifyState(old)
		newState := classifyState(merged)

		if err := m.updateIndexes(tx, old, found, merged, id); err != nil {
			return err
		}
		if err := m.writeEntry(tx, id, merged); err != nil {
			return err
		}
		if !found {
			for _, d := range merged.Digests {
				if err := tx.Put(algoTable(d.Algo), d.Raw, entryIDValue(id)); err != nil {
					return err
				}
			}
		}

		if err := m.applyCounterDelta(tx, found, oldState, newState, old.Size, merged.Size); err != nil {
			return err
		}
		if err := m.touchControlMTime(tx); err != nil {
			return err
		}

		merged.EntryID = id
		merged.Fresh = true
		result = merged
		changed = true
		return nil
	})
	if err != nil {
		return object.Object{}, false, err
	}
	return result, changed, nil
}

// insertRaw writes o as a brand-new record exactly as given, bypassing
// mergeRecord's state machine entirely. UpgradeToV1 uses this so a v0
// cache record's flags/dtime survive migration verbatim, rather than
// going through set_meta's "a fresh write may only become cache by
// downgrading an existing tombstone" rule (which does not apply here:
// the v0 record already legitimately holds that state).
func (m *MetaDB) insertRaw(tx kv.RwTx, o object.Object) error {
	id, found, err := m.resolveEntryID(tx, o.Digests)
	if err != nil {
		return err
	}
	if found {
		return dgtserr.NewCorruptStateError("insertRaw: digest already present in target store", nil)
	}
	id, err = nextEntryID(tx)
	if err != nil {
		return err
	}
	if err := checkCollisions(tx, o.Digests, id, true); err != nil {
		return err
	}

	o.EntryID = id
	if err := m.updateIndexes(tx, object.Object{}, false, o, id); err != nil {
		return err
	}
	if err := m.writeEntry(tx, id, o); err != nil {
		return err
	}
	for _, d := range o.Digests {
		if err := tx.Put(algoTable(d.Algo), d.Raw, entryIDValue(id)); err != nil {
			return err
		}
	}

	return m.applyCounterDelta(tx, false, stateCache, classifyState(o), 0, o.Size)
}

func bytesEqualSlices(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lifecycleState is the counter bucket a record falls into (spec §8
// invariant 3): live records count toward bytes, tombstones count
// toward deleted, and cache records count toward neither until a
// later write or MarkDeleted moves them out of the cache bucket (the
// three states are mutually exclusive and exhaustive for any record
// that exists).
type lifecycleState int

const (
	stateCache lifecycleState = iota
	stateLive
	stateTombstone
)

// classifyState reports the counter bucket an existing record falls
// into. Callers computing the state of a record that may not exist
// yet (the "old" side of a fresh insert) must gate on found/oldFound
// separately — applyCounterDelta's found=false branch never reads
// oldState.
func classifyState(o object.Object) lifecycleState {
	if o.Flags.Cache() {
		return stateCache
	}
	if o.DTime.IsZero() {
		return stateLive
	}
	return stateTombstone
}

// mergeRecord implements spec §4.2 step 2 (field merge) and step 3 (the
// cache/tombstone state machine). PTime is left as old.PTime (or zero
// for new records); the caller finalizes it after the idempotence
// check.
func mergeRecord(old object.Object, oldFound bool, in SetMetaInput, now object.Timestamp, expiry time.Duration) object.Object {
	var merged object.Object

	if oldFound {
		merged.Digests = old.Digests.Clone()
		merged.Size = old.Size
		merged.CTime = old.CTime
		merged.PTime = old.PTime
	} else {
		merged.Digests = in.Digests.Clone()
		merged.Size = in.Size
		merged.CTime = now
		merged.PTime = now
	}

	switch {
	case in.Preserve && oldFound:
		merged.MTime = old.MTime
	case !in.MTime.IsZero():
		merged.MTime = in.MTime
	case oldFound:
		merged.MTime = old.MTime
	default:
		merged.MTime = now
	}

	merged.Type = firstNonEmpty(in.Type, old.Type)
	merged.Charset = firstNonEmpty(in.Charset, old.Charset)
	merged.Language = firstNonEmpty(in.Language, old.Language)
	merged.Encoding = firstNonEmpty(in.Encoding, old.Encoding)

	merged.Flags = old.Flags.WithCache(in.Cache)

	wasCache := oldFound && old.Flags.Cache()
	isCache := in.Cache

	switch {
	case wasCache && isCache:
		if in.DTimeSupplied {
			merged.DTime = in.DTime
		} else {
			merged.DTime = object.Max(old.DTime, now.Add(expiry))
		}
	case !wasCache && isCache:
		oldWasTombstone := oldFound && !old.Flags.Cache() && !old.DTime.IsZero()
		if oldWasTombstone {
			if in.DTimeSupplied {
				merged.DTime = in.DTime
			} else {
				merged.DTime = now.Add(expiry)
			}
		} else {
			merged.Flags = merged.Flags.WithCache(false)
			if in.DTimeSupplied {
				merged.DTime = in.DTime
			} else if oldFound {
				merged.DTime = old.DTime
			}
		}
	case wasCache && !isCache:
		if in.DTimeSupplied {
			merged.DTime = in.DTime
		} else {
			merged.DTime = old.DTime
		}
	default: // !wasCache && !isCache
		if in.DTimeSupplied {
			merged.DTime = in.DTime
		} else if oldFound {
			merged.DTime = old.DTime
		}
	}

	return merged
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
