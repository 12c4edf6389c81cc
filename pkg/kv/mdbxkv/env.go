// Package mdbxkv implements pkg/kv on top of github.com/erigontech/mdbx-go,
// the real libmdbx binding the teacher's go.mod carries — memory-mapped,
// single writer / multiple readers, with native dupsort support. This
// is the concrete "LMDB-class" engine spec §4.2 requires.
package mdbxkv

import (
	"context"
	"fmt"
	"os"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
)

// DB wraps an *mdbx.Env opened against one Schema.
type DB struct {
	env    *mdbx.Env
	dbis   map[string]mdbx.DBI
	schema kv.Schema
}

// Options configures Open.
type Options struct {
	// Path is the directory (NoSubdir not set) holding the environment's
	// data and lock files.
	Path string
	// MapSize is the maximum size, in bytes, the memory map may grow
	// to; see spec §6 "mapsize".
	MapSize int64
	// Mode is the filesystem mode for newly created environment files.
	Mode os.FileMode
	// ReadOnly opens the environment without acquiring the writer
	// slot, used for the schema-v0 compatibility shim.
	ReadOnly bool
}

// Open creates (if necessary) and opens an environment at opts.Path
// with one DBI per table in schema.
func Open(schema kv.Schema, opts Options) (*DB, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, dgtserr.NewIOError("mdbx.NewEnv", err)
	}
	if err := env.SetMaxDBs(len(schema)); err != nil {
		return nil, dgtserr.NewIOError("mdbx.SetMaxDBs", err)
	}
	size := opts.MapSize
	if size <= 0 {
		size = 1 << 30 // 1GiB default, grown as needed up to a generous upper bound
	}
	if err := env.SetGeometry(-1, int(size), int(size)*4, -1, -1, -1); err != nil {
		return nil, dgtserr.NewIOError("mdbx.SetGeometry", err)
	}

	flags := uint(mdbx.Coalesce) | uint(mdbx.LifoReclaim)
	if opts.ReadOnly {
		flags |= uint(mdbx.Readonly)
	}
	mode := opts.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := env.Open(opts.Path, mdbx.EnvFlags(flags), mode); err != nil {
		return nil, dgtserr.NewIOError(fmt.Sprintf("mdbx.Open(%s)", opts.Path), err)
	}

	db := &DB{env: env, dbis: make(map[string]mdbx.DBI, len(schema)), schema: schema}

	openTables := env.Update
	if opts.ReadOnly {
		openTables = env.View
	}
	err = openTables(func(txn *mdbx.Txn) error {
		for name, tbl := range schema {
			var dbiFlags mdbx.DBIFlags
			if !opts.ReadOnly {
				dbiFlags |= mdbx.Create
			}
			if tbl.Flags&kv.DupSort != 0 {
				dbiFlags |= mdbx.DupSort
			}
			if tbl.Flags&kv.IntegerKey != 0 {
				dbiFlags |= mdbx.IntegerKey
			}
			dbi, err := txn.OpenDBI(name, dbiFlags, nil, nil)
			if err != nil {
				return fmt.Errorf("open table %q: %w", name, err)
			}
			db.dbis[name] = dbi
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, dgtserr.NewIOError("mdbx: open tables", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	db.env.Close()
	return nil
}

func (db *DB) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.env.View(func(txn *mdbx.Txn) error {
		return fn(&roTx{txn: txn, db: db})
	})
}

func (db *DB) Update(ctx context.Context, fn func(tx kv.RwTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.env.Update(func(txn *mdbx.Txn) error {
		return fn(&rwTx{roTx: roTx{txn: txn, db: db}})
	})
}

func (db *DB) dbi(table string) (mdbx.DBI, error) {
	d, ok := db.dbis[table]
	if !ok {
		return 0, fmt.Errorf("mdbxkv: unknown table %q", table)
	}
	return d, nil
}
