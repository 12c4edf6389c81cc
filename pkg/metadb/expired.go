package metadb

import (
	"context"

	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// ExpiredCache returns every cache record whose etime is <= now (spec
// §9 Open Questions: "a background task that iterates etime up to now
// and calls remove_meta is the natural extension"). Callers typically
// pass each result's EntryID to Forget.
func (m *MetaDB) ExpiredCache(ctx context.Context, now object.Timestamp) ([]object.Object, error) {
	var out []object.Object

	err := m.db.View(ctx, func(tx kv.Tx) error {
		dc, err := tx.DupCursor(TableETime)
		if err != nil {
			return err
		}
		defer dc.Close()

		k, v, err := dc.First()
		if err != nil {
			return err
		}
		for k != nil {
			if decodeNumKey(k) > uint64(now) {
				break
			}
			for v != nil {
				id := decodeEntryIDValue(v)
				o, found, err := m.loadEntry(tx, id)
				if err != nil {
					return err
				}
				if found {
					out = append(out, o)
				}
				_, v, err = dc.NextDup()
				if err != nil {
					return err
				}
			}
			k, v, err = dc.NextNoDup()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
