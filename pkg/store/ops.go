package store

import (
	"bytes"
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dgtstore/dgtstore/pkg/blobstore"
	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/metadb"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
	"github.com/dgtstore/dgtstore/pkg/scan"
)

// AddOptions carries add()'s optional inputs (spec §6 "add").
type AddOptions struct {
	FileName string
	Type     string
	Charset  string
	Language string
	Encoding string
	MTime    time.Time
	Strict   bool
	Preserve bool

	// Cache marks the written record as a cache entry rather than a
	// plain live object (spec §4.6): it is still readable via Get but
	// is subject to expiry and SweepExpired instead of persisting
	// until an explicit Remove.
	Cache bool
	// ETime is the cache entry's explicit expiry time. Zero means "use
	// the store's configured cache expiry from now" (spec §4.6); it is
	// ignored when Cache is false.
	ETime time.Time
}

// Add scans src into a temp-blob, writes its metadata, and settles the
// blob into place iff the write actually changed something (spec §4.4
// "add").
func (s *Store) Add(ctx context.Context, src io.Reader, opts AddOptions) (object.Object, error) {
	tmp, err := s.blobs.TempFile()
	if err != nil {
		return object.Object{}, err
	}

	normType, err := scan.NormalizeType(opts.Type, opts.Strict)
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}
	normCharset, err := scan.NormalizeCharset(opts.Charset, opts.Strict)
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}
	normLanguage, err := scan.NormalizeLanguage(opts.Language, opts.Strict)
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}
	normEncoding, err := scan.NormalizeEncoding(opts.Encoding, opts.Strict)
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}

	result, err := scan.Scan(src, tmp, s.meta.Algorithms(), scan.Options{
		FileName:   opts.FileName,
		CallerType: normType,
	})
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}

	in := metadb.SetMetaInput{
		Digests:  result.Digests,
		Size:     result.Size,
		Type:     result.Type,
		Charset:  normCharset,
		Language: normLanguage,
		Encoding: normEncoding,
		Preserve: opts.Preserve,
		Cache:    opts.Cache,
	}
	if !opts.MTime.IsZero() {
		in.MTime = object.FromTime(opts.MTime)
	}
	if opts.Cache && !opts.ETime.IsZero() {
		in.DTime = object.FromTime(opts.ETime)
		in.DTimeSupplied = true
	}

	obj, changed, err := s.meta.SetMeta(ctx, in)
	if err != nil {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, err
	}

	if !changed {
		if err := s.blobs.DiscardTemp(tmp); err != nil {
			return object.Object{}, err
		}
		return obj, nil
	}

	primary, ok := obj.Digest(s.meta.Primary())
	if !ok {
		s.blobs.DiscardTemp(tmp)
		return object.Object{}, dgtserr.NewCorruptStateError("set_meta result missing primary digest", nil)
	}
	if _, err := s.blobs.Settle(primary, tmp, obj.MTime.Time(), false); err != nil {
		s.logger.Warn("settle failed", zap.Error(err))
		return object.Object{}, err
	}
	return obj, nil
}

// Get resolves key to a record and, for a live or cache record, a blob
// read thunk (spec §4.4 "get"); a tombstone comes back with a nil thunk. Blobs at or above blobstore.MmapMinSize are
// served through a memory-mapped read instead of a buffered read(2).
func (s *Store) Get(ctx context.Context, key nihash.Digest) (object.Object, blobstore.ReadThunk, bool, error) {
	obj, found, err := s.meta.GetMetaByDigest(ctx, key)
	if err != nil || !found {
		return object.Object{}, nil, false, err
	}
	if !obj.IsLive() && !obj.IsCache() {
		return obj, nil, true, nil
	}
	primary, _ := obj.Digest(s.meta.Primary())

	if obj.Size >= blobstore.MmapMinSize {
		mapped, mapFound, err := s.blobs.GetMmap(primary)
		if err != nil {
			return object.Object{}, nil, false, err
		}
		if mapFound {
			thunk := func() (io.ReadCloser, error) {
				return &mmapReadCloser{Reader: bytes.NewReader(mapped.Bytes()), mapped: mapped}, nil
			}
			return obj, thunk, true, nil
		}
	}

	thunk, _, err := s.blobs.Get(primary)
	if err != nil {
		return object.Object{}, nil, false, err
	}
	return obj, thunk, true, nil
}

// mmapReadCloser streams a MappedBlob's bytes via bytes.Reader and
// releases the mapping on Close.
type mmapReadCloser struct {
	*bytes.Reader
	mapped *blobstore.MappedBlob
}

func (m *mmapReadCloser) Close() error {
	return m.mapped.Close()
}

// Remove marks a record as a tombstone and erases its blob (spec §4.4
// "remove").
func (s *Store) Remove(ctx context.Context, key nihash.Digest) (object.Object, blobstore.ReadThunk, bool, error) {
	obj, found, err := s.meta.GetMetaByDigest(ctx, key)
	if err != nil || !found {
		return object.Object{}, nil, false, err
	}

	var thunk blobstore.ReadThunk
	if primary, ok := obj.Digest(s.meta.Primary()); ok {
		thunk, _, err = s.blobs.Erase(primary)
		if err != nil {
			return object.Object{}, nil, false, err
		}
	}

	updated, _, err := s.meta.MarkDeleted(ctx, obj.EntryID, object.Now())
	if err != nil {
		return object.Object{}, nil, false, err
	}
	return updated, thunk, true, nil
}

// Forget purges a record and erases its blob (spec §4.4 "forget").
func (s *Store) Forget(ctx context.Context, key nihash.Digest) (object.Object, blobstore.ReadThunk, bool, error) {
	obj, found, err := s.meta.GetMetaByDigest(ctx, key)
	if err != nil || !found {
		return object.Object{}, nil, false, err
	}

	var thunk blobstore.ReadThunk
	if primary, ok := obj.Digest(s.meta.Primary()); ok {
		thunk, _, err = s.blobs.Erase(primary)
		if err != nil {
			return object.Object{}, nil, false, err
		}
	}

	if _, err := s.meta.Forget(ctx, obj.EntryID); err != nil {
		return object.Object{}, nil, false, err
	}
	return obj, thunk, true, nil
}

// Stats returns the store's counters and secondary-index summaries.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.meta.Stats(ctx)
}

// List runs a multi-dimensional query (spec §4.2 "list").
func (s *Store) List(ctx context.Context, filter Filter) ([]object.Object, error) {
	return s.meta.List(ctx, filter)
}

// SweepExpired forgets every cache record whose expiry has passed
// (spec §4.6, driving metadb.ExpiredCache through Forget).
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.meta.ExpiredCache(ctx, object.Now())
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, e := range expired {
		if primary, ok := e.Digest(s.meta.Primary()); ok {
			if _, _, err := s.blobs.Erase(primary); err != nil {
				s.logger.Warn("sweep: erase failed", zap.Uint64("entry_id", e.EntryID), zap.Error(err))
				continue
			}
		}
		if _, err := s.meta.Forget(ctx, e.EntryID); err != nil {
			s.logger.Warn("sweep: forget failed", zap.Uint64("entry_id", e.EntryID), zap.Error(err))
			continue
		}
		swept++
	}
	s.logger.Info("sweep complete", zap.Int("swept", swept), zap.Int("candidates", len(expired)))
	return swept, nil
}
