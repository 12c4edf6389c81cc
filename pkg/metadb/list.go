package metadb

import (
	"context"

	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// Range is an inclusive [Lo, Hi] bound on a numeric dimension; a nil
// bound is open on that side.
type Range struct {
	Lo *uint64
	Hi *uint64
}

func (r Range) empty() bool { return r.Lo == nil && r.Hi == nil }

func (r Range) contains(v uint64) bool {
	if r.Lo != nil && v < *r.Lo {
		return false
	}
	if r.Hi != nil && v > *r.Hi {
		return false
	}
	return true
}

// Filter is the list() predicate (spec §4.2 list): type/charset/
// language/encoding are discrete sets ORed within the dimension;
// size/ctime/mtime/ptime/dtime are inclusive ranges. All supplied
// dimensions are ANDed together. A Range zero value (both bounds nil)
// and a nil/empty discrete slice both mean "dimension not supplied".
type Filter struct {
	Type     []string
	Charset  []string
	Language []string
	Encoding []string

	Size  Range
	CTime Range
	MTime Range
	PTime Range
	DTime Range
}

func (f Filter) discreteDims() []struct {
	table  string
	values []string
} {
	return []struct {
		table  string
		values []string
	}{
		{TableType, f.Type},
		{TableCharset, f.Charset},
		{TableLanguage, f.Language},
		{TableEncoding, f.Encoding},
	}
}

func (f Filter) rangeDims() []struct {
	table string
	r     Range
} {
	return []struct {
		table string
		r     Range
	}{
		{TableSize, f.Size},
		{TableCTime, f.CTime},
		{TableMTime, f.MTime},
		{TablePTime, f.PTime},
		{TableDTime, f.DTime},
	}
}

// List runs filter against the store and returns every matching
// record (spec §4.2 list(filter)). It chooses the smallest-looking
// supplied dimension as the driving index, collects candidate
// entry-ids from it, then re-checks every predicate against the full
// loaded record (step 3: "apply the remaining predicates as a
// conjunction").
func (m *MetaDB) List(ctx context.Context, filter Filter) ([]object.Object, error) {
	var out []object.Object

	err := m.db.View(ctx, func(tx kv.Tx) error {
		driving, ok, err := m.pickDrivingSet(tx, filter)
		if err != nil {
			return err
		}

		var ids []uint64
		if ok {
			ids = driving
		} else {
			ids, err = allEntryIDs(tx)
			if err != nil {
				return err
			}
		}

		for _, id := range ids {
			o, found, err := m.loadEntry(tx, id)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if matches(o, filter) {
				out = append(out, o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pickDrivingSet evaluates every supplied dimension and returns the
// candidate id set from whichever produced the fewest candidates
// (spec step 1: "choose the driving index: the supplied dimension
// with the smallest table cardinality"). ok is false if no dimension
// was supplied, meaning the caller must fall back to a full scan.
func (m *MetaDB) pickDrivingSet(tx kv.Tx, filter Filter) ([]uint64, bool, error) {
	var best []uint64
	haveBest := false

	for _, d := range filter.discreteDims() {
		if len(d.values) == 0 {
			continue
		}
		ids, err := collectDiscreteCandidates(tx, d.table, d.values)
		if err != nil {
			return nil, false, err
		}
		if !haveBest || len(ids) < len(best) {
			best = ids
			haveBest = true
		}
	}

	for _, d := range filter.rangeDims() {
		if d.r.empty() {
			continue
		}
		ids, err := collectRangeCandidates(tx, d.table, d.r)
		if err != nil {
			return nil, false, err
		}
		if !haveBest || len(ids) < len(best) {
			best = ids
			haveBest = true
		}
	}

	return best, haveBest, nil
}

func collectDiscreteCandidates(tx kv.Tx, table string, values []string) ([]uint64, error) {
	seen := map[uint64]struct{}{}
	var out []uint64

	dc, err := tx.DupCursor(table)
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	for _, val := range values {
		k, v, err := dc.Seek([]byte(val))
		if err != nil {
			return nil, err
		}
		if k == nil || string(k) != val {
			continue
		}
		for v != nil {
			id := decodeEntryIDValue(v)
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
			_, v, err = dc.NextDup()
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func collectRangeCandidates(tx kv.Tx, table string, r Range) ([]uint64, error) {
	seen := map[uint64]struct{}{}
	var out []uint64

	dc, err := tx.DupCursor(table)
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	var k, v []byte
	if r.Lo != nil {
		k, v, err = dc.Seek(numKey(*r.Lo))
	} else {
		k, v, err = dc.First()
	}
	if err != nil {
		return nil, err
	}

	for k != nil {
		key := decodeNumKey(k)
		if r.Hi != nil && key > *r.Hi {
			break
		}
		for v != nil {
			id := decodeEntryIDValue(v)
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
			_, v, err = dc.NextDup()
			if err != nil {
				return nil, err
			}
		}
		k, v, err = dc.NextNoDup()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func allEntryIDs(tx kv.Tx) ([]uint64, error) {
	c, err := tx.Cursor(TableEntry)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var ids []uint64
	k, _, err := c.First()
	if err != nil {
		return nil, err
	}
	for k != nil {
		ids = append(ids, decodeEntryIDKey(k))
		k, _, err = c.Next()
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func matches(o object.Object, filter Filter) bool {
	if !matchDiscrete(o.Type, filter.Type) {
		return false
	}
	if !matchDiscrete(o.Charset, filter.Charset) {
		return false
	}
	if !matchDiscrete(o.Language, filter.Language) {
		return false
	}
	if !matchDiscrete(o.Encoding, filter.Encoding) {
		return false
	}
	if !filter.Size.empty() && !filter.Size.contains(o.Size) {
		return false
	}
	if !filter.CTime.empty() && !filter.CTime.contains(uint64(o.CTime)) {
		return false
	}
	if !filter.MTime.empty() && !filter.MTime.contains(uint64(o.MTime)) {
		return false
	}
	if !filter.PTime.empty() && !filter.PTime.contains(uint64(o.PTime)) {
		return false
	}
	if !filter.DTime.empty() {
		if o.DTime.IsZero() || !filter.DTime.contains(uint64(o.DTime)) {
			return false
		}
	}
	return true
}

func matchDiscrete(val string, set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == val {
			return true
		}
	}
	return false
}
