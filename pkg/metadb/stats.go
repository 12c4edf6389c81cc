package metadb

import (
	"context"

	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// Stats summarizes the store's control counters and the distinct
// values currently present in each discrete secondary index (spec §6
// stats(): "objects, deleted, bytes, types, languages, charsets,
// encodings").
type Stats struct {
	CTime     object.Timestamp
	MTime     object.Timestamp
	Objects   uint64
	Deleted   uint64
	Bytes     uint64
	Types     []string
	Languages []string
	Charsets  []string
	Encodings []string
}

// Stats reads the control counters and walks each discrete index's
// distinct keys with NextNoDup.
func (m *MetaDB) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	err := m.db.View(ctx, func(tx kv.Tx) error {
		ctime, err := m.controlUint64(tx, ctlCTime)
		if err != nil {
			return err
		}
		mtime, err := m.controlUint64(tx, ctlMTime)
		if err != nil {
			return err
		}
		objects, err := m.controlUint64(tx, ctlObjects)
		if err != nil {
			return err
		}
		deleted, err := m.controlUint64(tx, ctlDeleted)
		if err != nil {
			return err
		}
		bytes, err := m.controlUint64(tx, ctlBytes)
		if err != nil {
			return err
		}
		s.CTime = object.Timestamp(ctime)
		s.MTime = object.Timestamp(mtime)
		s.Objects = objects
		s.Deleted = deleted
		s.Bytes = bytes

		s.Types, err = distinctKeys(tx, TableType)
		if err != nil {
			return err
		}
		s.Languages, err = distinctKeys(tx, TableLanguage)
		if err != nil {
			return err
		}
		s.Charsets, err = distinctKeys(tx, TableCharset)
		if err != nil {
			return err
		}
		s.Encodings, err = distinctKeys(tx, TableEncoding)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func distinctKeys(tx kv.Tx, table string) ([]string, error) {
	dc, err := tx.DupCursor(table)
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	var out []string
	k, _, err := dc.First()
	if err != nil {
		return nil, err
	}
	for k != nil {
		out = append(out, string(k))
		k, _, err = dc.NextNoDup()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
