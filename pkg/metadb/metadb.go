package metadb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

// DefaultExpiry is the default cache-record expiry window (spec §4.2
// control table: "expiry (seconds; default 86400)").
const DefaultExpiry = 86400 * time.Second

// MetaDB is the persistent metadata engine bound to one kv.DB.
type MetaDB struct {
	db      kv.DB
	algos   []nihash.Algorithm
	primary nihash.Algorithm
	// legacy marks a MetaDB opened via OpenLegacy (schema v0). Every
	// mutating method refuses with dgtserr.ErrLegacySchemaReadOnly.
	legacy bool
}

// OpenOptions configures a new or existing store's control table.
type OpenOptions struct {
	Algorithms []nihash.Algorithm
	Primary    nihash.Algorithm
	Expiry     time.Duration
}

// Open opens db as a schema-v1 metadata engine, initializing the
// control table on first use or validating it against opts on
// subsequent opens. An absent version key is treated as a fresh store
// and initialized as v1. A version of "0" returns a *CorruptStateError
// (such a store is opened with OpenLegacy, see schemav0.go), as does
// any other unrecognized version.
func Open(ctx context.Context, db kv.DB, opts OpenOptions) (*MetaDB, error) {
	m := &MetaDB{db: db}

	err := db.Update(ctx, func(tx kv.RwTx) error {
		versionRaw, err := tx.GetOne(TableControl, []byte(ctlVersion))
		if err != nil {
			return err
		}
		if versionRaw == nil {
			return m.initControl(tx, opts)
		}
		switch string(versionRaw) {
		case "1":
			return m.loadControl(tx)
		case "0":
			return dgtserr.NewCorruptStateError("schema v0 store opened via metadb.Open; use OpenLegacy", nil)
		default:
			return dgtserr.NewCorruptStateError(fmt.Sprintf("unrecognized schema version %q", versionRaw), nil)
		}
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MetaDB) initControl(tx kv.RwTx, opts OpenOptions) error {
	algos := opts.Algorithms
	if len(algos) == 0 {
		algos = nihash.AllAlgorithms()
	}
	algos = nihash.CanonicalOrder(algos)
	primary := opts.Primary
	if primary == "" {
		primary = nihash.SHA256
	}
	found := false
	for _, a := range algos {
		if a == primary {
			found = true
			break
		}
	}
	if !found {
		return dgtserr.NewArgumentError(fmt.Sprintf("primary algorithm %s not in algorithms list", primary), nil)
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	now := object.Now()
	names := make([]string, len(algos))
	for i, a := range algos {
		names[i] = string(a)
	}

	kvs := map[string]string{
		ctlVersion:    "1",
		ctlCTime:      strconv.FormatInt(int64(now), 10),
		ctlMTime:      strconv.FormatInt(int64(now), 10),
		ctlExpiry:     strconv.FormatInt(int64(expiry/time.Second), 10),
		ctlObjects:    "0",
		ctlDeleted:    "0",
		ctlBytes:      "0",
		ctlAlgorithms: strings.Join(names, ","),
		ctlPrimary:    string(primary),
	}
	for k, v := range kvs {
		if err := tx.Put(TableControl, []byte(k), []byte(v)); err != nil {
			return err
		}
	}

	m.algos = algos
	m.primary = primary
	return nil
}

func (m *MetaDB) loadControl(tx kv.RwTx) error {
	algosRaw, err := tx.GetOne(TableControl, []byte(ctlAlgorithms))
	if err != nil {
		return err
	}
	primaryRaw, err := tx.GetOne(TableControl, []byte(ctlPrimary))
	if err != nil {
		return err
	}
	if algosRaw == nil || primaryRaw == nil {
		return dgtserr.NewCorruptStateError("control table missing algorithms/primary", nil)
	}
	var algos []nihash.Algorithm
	for _, n := range strings.Split(string(algosRaw), ",") {
		algos = append(algos, nihash.Algorithm(n))
	}
	m.algos = nihash.CanonicalOrder(algos)
	m.primary = nihash.Algorithm(primaryRaw)
	return nil
}

// Algorithms returns the store's configured digest algorithms, in
// canonical order.
func (m *MetaDB) Algorithms() []nihash.Algorithm { return m.algos }

// Primary returns the store's primary algorithm.
func (m *MetaDB) Primary() nihash.Algorithm { return m.primary }

func (m *MetaDB) controlUint64(tx kv.Tx, key string) (uint64, error) {
	raw, err := tx.GetOne(TableControl, []byte(key))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, dgtserr.NewCorruptStateError(fmt.Sprintf("control.%s not an integer: %q", key, raw), err)
	}
	return v, nil
}

func (m *MetaDB) putControlUint64(tx kv.RwTx, key string, v uint64) error {
	return tx.Put(TableControl, []byte(key), []byte(strconv.FormatUint(v, 10)))
}

func (m *MetaDB) addControlUint64(tx kv.RwTx, key string, delta int64) error {
	cur, err := m.controlUint64(tx, key)
	if err != nil {
		return err
	}
	next := int64(cur) + delta
	if next < 0 {
		next = 0
	}
	return m.putControlUint64(tx, key, uint64(next))
}

func (m *MetaDB) expiry(tx kv.Tx) (time.Duration, error) {
	secs, err := m.controlUint64(tx, ctlExpiry)
	if err != nil {
		return 0, err
	}
	if secs == 0 {
		return DefaultExpiry, nil
	}
	return time.Duration(secs) * time.Second, nil
}

func (m *MetaDB) touchControlMTime(tx kv.RwTx) error {
	return tx.Put(TableControl, []byte(ctlMTime), []byte(strconv.FormatInt(int64(object.Now()), 10)))
}

// Close releases the underlying environment.
func (m *MetaDB) Close() error { return m.db.Close() }
