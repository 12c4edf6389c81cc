// Package blobstore implements the filesystem blob layer (spec §4.1):
// a root directory of `store/` (hashed blob tree) and `tmp/` (temp
// blobs awaiting settle), Base32 path derivation, atomic settle, a
// read-thunk get, and best-effort directory pruning on erase.
package blobstore

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/nihash"
)

// MmapMinSize is the blob size above which GetMmap is worth its
// per-call mapping overhead (spec §9 "large blobs should avoid a full
// read(2) copy into the page cache a second time").
const MmapMinSize = 1 << 20

var base32Enc = base32.StdEncoding.WithPadding(base32.NoPadding)

const (
	storeDirName = "store"
	tmpDirName   = "tmp"
)

// BlobStore roots a hashed blob tree under dir.
type BlobStore struct {
	dir   string
	umask os.FileMode
}

// Options configures a new BlobStore.
type Options struct {
	Dir string
	// Umask masks mode bits of created files/directories (spec §5:
	// "captured at setup and propagated to every mkdir/open").
	Umask os.FileMode
}

// Open ensures dir/store and dir/tmp exist with mode 0777&^umask
// (setgid where supported) and returns a BlobStore bound to them.
// Permission failures here are hard errors (spec §4.1).
func Open(opts Options) (*BlobStore, error) {
	if opts.Dir == "" {
		return nil, dgtserr.NewArgumentError("blobstore: dir is required", nil)
	}
	bs := &BlobStore{dir: opts.Dir, umask: opts.Umask}

	for _, sub := range []string{storeDirName, tmpDirName} {
		if err := bs.mkdirAll(filepath.Join(opts.Dir, sub)); err != nil {
			return nil, dgtserr.NewIOError("open: mkdir "+sub, err)
		}
	}
	return bs, nil
}

func (b *BlobStore) dirMode() os.FileMode {
	return (0777 &^ b.umask) | os.ModeSetgid
}

func (b *BlobStore) fileMode() os.FileMode {
	return 0444 &^ b.umask
}

// mkdirAll creates path and all missing parents at dirMode, tolerating
// a setgid bit the platform silently drops.
func (b *BlobStore) mkdirAll(path string) error {
	return os.MkdirAll(path, b.dirMode())
}

// relPath derives the relative path under store/ for a primary digest:
// lower-case Base32 without padding, split into [4, 4, 4, rest].
func relPath(raw []byte) string {
	enc := strings.ToLower(base32Enc.EncodeToString(raw))
	segs := make([]string, 0, 4)
	rest := enc
	for i := 0; i < 3 && len(rest) > 4; i++ {
		segs = append(segs, rest[:4])
		rest = rest[4:]
	}
	segs = append(segs, rest)
	return filepath.Join(segs...)
}

// Path returns the absolute target path for a primary digest.
func (b *BlobStore) Path(primary nihash.Digest) string {
	return filepath.Join(b.dir, storeDirName, relPath(primary.Raw))
}

// TempFile opens a new temp-file handle in tmp/ for a caller to stream
// scan bytes into before the digest is known.
func (b *BlobStore) TempFile() (*os.File, error) {
	f, err := os.CreateTemp(filepath.Join(b.dir, tmpDirName), "blob-*")
	if err != nil {
		return nil, dgtserr.NewIOError("tempfile", err)
	}
	return f, nil
}

// Settle finalizes a temp-file into place under the primary digest's
// path (spec §4.1 "Write (settle)"):
//  1. flush and close tmp
//  2. ensure the target's parent directory chain exists
//  3. if the target exists and overwrite is false, discard tmp
//  4. otherwise atomically rename tmp -> target, chmod 0444&^umask,
//     utime to mtime
//
// ok reports whether the rename happened (false means the temp-file
// was discarded because the target already existed).
func (b *BlobStore) Settle(primary nihash.Digest, tmp *os.File, mtime time.Time, overwrite bool) (ok bool, err error) {
	tmpPath := tmp.Name()
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, dgtserr.NewIOError("settle: sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return false, dgtserr.NewIOError("settle: close", err)
	}

	target := b.Path(primary)
	if err := b.mkdirAll(filepath.Dir(target)); err != nil {
		os.Remove(tmpPath)
		return false, dgtserr.NewIOError("settle: mkdir", err)
	}

	if !overwrite {
		if _, statErr := os.Stat(target); statErr == nil {
			os.Remove(tmpPath)
			return false, nil
		} else if !os.IsNotExist(statErr) {
			os.Remove(tmpPath)
			return false, dgtserr.NewIOError("settle: stat", statErr)
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return false, dgtserr.NewIOError("settle: rename", err)
	}
	if err := os.Chmod(target, b.fileMode()); err != nil {
		return false, dgtserr.NewIOError("settle: chmod", err)
	}
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		return false, dgtserr.NewIOError("settle: utime", err)
	}
	return true, nil
}

// DiscardTemp removes a temp-file a caller decided not to settle (for
// example because scan failed or set_meta made no change).
func (b *BlobStore) DiscardTemp(tmp *os.File) error {
	name := tmp.Name()
	tmp.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return dgtserr.NewIOError("discard temp", err)
	}
	return nil
}

// ReadThunk defers opening a blob's file handle until called, so a
// large List result set does not exhaust file descriptors up front
// (spec §4.1 "Read").
type ReadThunk func() (io.ReadCloser, error)

// Get returns found=false if the blob is missing, or a ReadThunk that
// opens the file on demand. A path that exists but is not a regular
// readable file is corrupt state, not "missing" (spec invariant: a
// live entry's blob must exist and be readable).
func (b *BlobStore) Get(primary nihash.Digest) (thunk ReadThunk, found bool, err error) {
	target := b.Path(primary)
	info, statErr := os.Stat(target)
	if os.IsNotExist(statErr) {
		return nil, false, nil
	}
	if statErr != nil {
		return nil, false, dgtserr.NewIOError("get: stat", statErr)
	}
	if !info.Mode().IsRegular() {
		return nil, false, dgtserr.NewCorruptStateError(fmt.Sprintf("blob path is not a regular file: %s", target), nil)
	}
	if f, openErr := os.Open(target); openErr != nil {
		if os.IsPermission(openErr) {
			return nil, false, dgtserr.NewCorruptStateError(fmt.Sprintf("blob path is not readable: %s", target), openErr)
		}
		return nil, false, dgtserr.NewIOError("get: open", openErr)
	} else {
		f.Close()
	}
	return func() (io.ReadCloser, error) {
		f, err := os.Open(target)
		if err != nil {
			return nil, dgtserr.NewIOError("get: open", err)
		}
		return f, nil
	}, true, nil
}

// GetMmap memory-maps a blob read-only instead of returning a
// streaming ReadThunk, for callers serving large blobs (spec §9) where
// avoiding a buffered read(2) copy matters. The caller must call
// Close() on the returned handle to unmap.
func (b *BlobStore) GetMmap(primary nihash.Digest) (data *MappedBlob, found bool, err error) {
	target := b.Path(primary)
	f, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dgtserr.NewIOError("get_mmap: open", err)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, false, dgtserr.NewIOError("get_mmap: map", err)
	}
	return &MappedBlob{region: m}, true, nil
}

// MappedBlob is a read-only memory-mapped blob. It implements
// io.ReaderAt so a caller can serve range requests without copying the
// whole blob, and must be Close()d to release the mapping.
type MappedBlob struct {
	region mmap.MMap
}

func (m *MappedBlob) Bytes() []byte { return m.region }

func (m *MappedBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.region)) {
		return 0, io.EOF
	}
	n := copy(p, m.region[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MappedBlob) Close() error {
	return m.region.Unmap()
}

// Erase opens the blob (to return its contents to the caller before
// unlinking), removes it, then walks up the relative directory chain
// under store/ removing every now-empty ancestor (spec §4.1 "Erase").
// The directory pruning walk is best-effort: a concurrent writer
// recreating a directory it needs simply wins the race and Erase's
// failed rmdir is silently ignored (spec §5).
func (b *BlobStore) Erase(primary nihash.Digest) (thunk ReadThunk, found bool, err error) {
	target := b.Path(primary)
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dgtserr.NewIOError("erase: read", err)
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return nil, false, dgtserr.NewIOError("erase: remove", err)
	}

	b.pruneAncestors(filepath.Dir(target))

	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, true, nil
}

func (b *BlobStore) pruneAncestors(dir string) {
	storeRoot := filepath.Join(b.dir, storeDirName)
	for dir != storeRoot && strings.HasPrefix(dir, storeRoot) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
