// Package store implements the driver that binds the blob filesystem
// and the metadata engine under one transactional envelope (spec
// §4.4): Add, Get, Remove, Forget, Stats, List, plus the supplemented
// SweepExpired cache-eviction driver (spec §4.6).
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/dgtstore/dgtstore/pkg/blobstore"
	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/kv/mdbxkv"
	"github.com/dgtstore/dgtstore/pkg/metadb"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
	"github.com/dgtstore/dgtstore/pkg/scan"
)

// Store is a fully opened dgtstore instance: a blob filesystem, a
// metadata engine, and the process-level root lock guarding them.
type Store struct {
	blobs  *blobstore.BlobStore
	meta   *metadb.MetaDB
	kvdb   kv.DB
	lock   *flock.Flock
	logger *zap.Logger
}

// Open opens or creates a store rooted at cfg.Dir (spec §6 "new").
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, dgtserr.NewArgumentError("store: dir is required", nil)
	}
	log := cfg.logger()

	if err := os.MkdirAll(cfg.Dir, 0o777&^cfg.Umask|os.ModeSetgid); err != nil {
		return nil, dgtserr.NewIOError("store: mkdir root", err)
	}

	lock := flock.New(filepath.Join(cfg.Dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, dgtserr.NewIOError("store: lock root", err)
	}
	if !locked {
		return nil, dgtserr.NewIOError("store: lock root", fmt.Errorf("root directory %s is locked by another process", cfg.Dir))
	}

	blobs, err := blobstore.Open(blobstore.Options{Dir: cfg.Dir, Umask: cfg.Umask})
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	kvDir := filepath.Join(cfg.Dir, "db")
	if err := os.MkdirAll(kvDir, 0o777&^cfg.Umask|os.ModeSetgid); err != nil {
		lock.Unlock()
		return nil, dgtserr.NewIOError("store: mkdir db", err)
	}
	mapSize, err := cfg.mapSizeBytes()
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	algos := cfg.Algorithms
	if len(algos) == 0 {
		algos = nihash.AllAlgorithms()
	}
	primary := cfg.Primary
	if primary == "" {
		primary = nihash.SHA256
	}

	var schema kv.Schema
	if cfg.Legacy {
		schema = metadb.SchemaV0()
	} else {
		schema = metadb.SchemaV1(algos)
	}

	kvdb, err := mdbxkv.Open(schema, mdbxkv.Options{
		Path:     kvDir,
		MapSize:  mapSize,
		Mode:     0o644,
		ReadOnly: cfg.Legacy,
	})
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	var meta *metadb.MetaDB
	if cfg.Legacy {
		meta, err = metadb.OpenLegacy(ctx, kvdb, primary)
	} else {
		meta, err = metadb.Open(ctx, kvdb, metadb.OpenOptions{
			Algorithms: algos,
			Primary:    primary,
			Expiry:     cfg.Expiry,
		})
	}
	if err != nil {
		kvdb.Close()
		lock.Unlock()
		return nil, err
	}

	log.Info("store opened",
		zap.String("dir", cfg.Dir),
		zap.Any("algorithms", algos),
		zap.String("primary", string(primary)),
		zap.Bool("legacy", cfg.Legacy),
	)
	return &Store{blobs: blobs, meta: meta, kvdb: kvdb, lock: lock, logger: log}, nil
}

// Close releases the metadata environment and the root lock.
func (s *Store) Close() error {
	err := s.meta.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	s.logger.Info("store closed")
	return err
}

// Filter is re-exported so callers of pkg/store never need to import
// pkg/metadb directly for List.
type Filter = metadb.Filter

// Range is re-exported alongside Filter.
type Range = metadb.Range

// Stats is re-exported alongside Filter.
type Stats = metadb.Stats
