package metadb

import (
	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// reverseAlgos returns algos reversed, used to prefer the "largest"
// (strongest) available digest when resolving an entry-id (spec §4.2
// set_meta step 1: "prefer the largest available").
func reverseAlgos(algos []nihash.Algorithm) []nihash.Algorithm {
	out := make([]nihash.Algorithm, len(algos))
	for i, a := range algos {
		out[len(algos)-1-i] = a
	}
	return out
}

// lookupDigest returns every entry-id currently indexed under d. Under
// the non-collision assumption this has at most one element; more than
// one indicates a secondary-hash collision (spec §9 Open Questions).
func lookupDigest(tx kv.Tx, d nihash.Digest) ([]uint64, error) {
	dc, err := tx.DupCursor(algoTable(d.Algo))
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	k, v, err := dc.Seek(d.Raw)
	if err != nil {
		return nil, err
	}
	if k == nil || !bytesEqual(k, d.Raw) {
		return nil, nil
	}
	var ids []uint64
	for v != nil {
		ids = append(ids, decodeEntryIDValue(v))
		_, v, err = dc.NextDup()
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func bytesEqual(a, b []byte) bool {
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

// resolveEntryID finds the existing entry-id for digests, if any,
// preferring the strongest available algorithm.
func (m *MetaDB) resolveEntryID(tx kv.Tx, digests nihash.Set) (id uint64, found bool, err error) {
	for _, a := range reverseAlgos(m.algos) {
		d, ok := digests[a]
		if !ok {
			continue
		}
		ids, err := lookupDigest(tx, d)
		if err != nil {
			return 0, false, err
		}
		if len(ids) > 0 {
			return ids[0], true, nil
		}
	}
	return 0, false, nil
}

// checkCollisions verifies that every digest in digests, if already
// indexed, points at wantID (or does not exist yet). It returns
// dgtserr.ErrDigestCollision on the first mismatch.
func checkCollisions(tx kv.Tx, digests nihash.Set, wantID uint64, isNew bool) error {
	for _, d := range digests {
		ids, err := lookupDigest(tx, d)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if id != wantID {
				return dgtserr.ErrDigestCollision
			}
		}
		if isNew && len(ids) > 0 {
			// A "new" entry-id allocation should never already own
			// index rows; if it does, something upstream is wrong.
			return dgtserr.ErrDigestCollision
		}
	}
	return nil
}

// nextEntryID allocates the next entry-id: strictly greater than the
// current maximum key in the entry table (0 is reserved as
// "unallocated").
func nextEntryID(tx kv.Tx) (uint64, error) {
	c, err := tx.Cursor(TableEntry)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	var maxID uint64
	k, _, err := c.First()
	if err != nil {
		return 0, err
	}
	for k != nil {
		id := decodeEntryIDKey(k)
		if id > maxID {
			maxID = id
		}
		k, _, err = c.Next()
		if err != nil {
			return 0, err
		}
	}
	return maxID + 1, nil
}

// loadEntry reads and unpacks the record for id, or returns found=false
// if absent.
func (m *MetaDB) loadEntry(tx kv.Tx, id uint64) (object.Object, bool, error) {
	raw, err := tx.GetOne(TableEntry, entryIDKey(id))
	if err != nil {
		return object.Object{}, false, err
	}
	if raw == nil {
		return object.Object{}, false, nil
	}
	o, err := object.Unpack(raw, m.algos)
	if err != nil {
		return object.Object{}, false, dgtserr.NewCorruptStateError("unpack entry record", err)
	}
	o.EntryID = id
	return o, true, nil
}

// writeEntry packs and stores o under id.
func (m *MetaDB) writeEntry(tx kv.RwTx, id uint64, o object.Object) error {
	rec := object.Pack(o, m.algos)
	return tx.Put(TableEntry, entryIDKey(id), rec)
}
