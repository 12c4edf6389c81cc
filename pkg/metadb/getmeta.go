package metadb

import (
	"context"

	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// GetMeta resolves a record by entry-id (GetMetaByDigest and
// GetMetaByDigests resolve by digest), returning found=false rather
// than an error when nothing matches (spec §4.2 get_meta: "return none
// if absent").
func (m *MetaDB) GetMeta(ctx context.Context, id uint64) (object.Object, bool, error) {
	var result object.Object
	var found bool
	err := m.db.View(ctx, func(tx kv.Tx) error {
		var err error
		result, found, err = m.loadEntry(tx, id)
		return err
	})
	if err != nil {
		return object.Object{}, false, err
	}
	return result, found, nil
}

// GetMetaByDigest resolves a record by a single digest (e.g. a parsed
// ni: URI), preferring nothing in particular since at most one
// algorithm is supplied.
func (m *MetaDB) GetMetaByDigest(ctx context.Context, d nihash.Digest) (object.Object, bool, error) {
	return m.GetMetaByDigests(ctx, nihash.Set{d.Algo: d})
}

// GetMetaByDigests resolves a record by any of the supplied digests,
// preferring the strongest available algorithm, matching the
// resolution rule set_meta uses to find an existing record.
func (m *MetaDB) GetMetaByDigests(ctx context.Context, digests nihash.Set) (object.Object, bool, error) {
	var result object.Object
	var found bool
	err := m.db.View(ctx, func(tx kv.Tx) error {
		id, ok, err := m.resolveEntryID(tx, digests)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		result, found, err = m.loadEntry(tx, id)
		return err
	})
	if err != nil {
		return object.Object{}, false, err
	}
	return result, found, nil
}
