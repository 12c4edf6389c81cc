package metadb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/kv/mdbxkv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

func openTestDB(t *testing.T) *MetaDB {
	t.Helper()
	dir := t.TempDir()
	algos := []nihash.Algorithm{nihash.MD5, nihash.SHA256}

	kvdb, err := mdbxkv.Open(SchemaV1(algos), mdbxkv.Options{Path: dir, MapSize: 64 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { kvdb.Close() })

	m, err := Open(context.Background(), kvdb, OpenOptions{Algorithms: algos, Primary: nihash.SHA256})
	require.NoError(t, err)
	return m
}

func digestsFor(data []byte, algos []nihash.Algorithm) nihash.Set {
	s := make(nihash.Set, len(algos))
	for _, a := range algos {
		s[a] = nihash.Compute(a, data)
	}
	return s
}

func TestSetMetaNewRecordCounters(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()

	obj, changed, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("some data"), m.Algorithms()),
		Size:    9,
		Type:    "text/plain",
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, uint64(9), obj.Size)
	require.Equal(t, "text/plain", obj.Type)
	require.True(t, obj.IsLive())

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
	require.Equal(t, uint64(0), st.Deleted)
	require.Equal(t, uint64(9), st.Bytes)
}

func TestSetMetaIdempotent(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()
	in := SetMetaInput{
		Digests: digestsFor([]byte("idempotent"), m.Algorithms()),
		Size:    10,
		Type:    "text/plain",
	}

	first, changed, err := m.SetMeta(ctx, in)
	require.NoError(t, err)
	require.True(t, changed)

	second, changed, err := m.SetMeta(ctx, in)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, first.EntryID, second.EntryID)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
}

func TestSetMetaPreservesFieldsAcrossWrites(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()
	digests := digestsFor([]byte("merge me"), m.Algorithms())

	first, _, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digests, Size: 8, Type: "text/plain", Language: "en",
	})
	require.NoError(t, err)

	second, changed, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digests, Size: 8, Charset: "utf-8",
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, first.EntryID, second.EntryID)
	require.Equal(t, "text/plain", second.Type, "type from the first write must survive a merge that doesn't supply it")
	require.Equal(t, "en", second.Language)
	require.Equal(t, "utf-8", second.Charset)
}

func TestSetMetaRejectsDigestCollision(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()

	sha := nihash.Compute(nihash.SHA256, []byte("shared"))
	md5a := nihash.Compute(nihash.MD5, []byte("a"))
	md5b := nihash.Compute(nihash.MD5, []byte("b"))

	_, _, err := m.SetMeta(ctx, SetMetaInput{
		Digests: nihash.Set{nihash.SHA256: sha, nihash.MD5: md5a},
		Size:    1,
	})
	require.NoError(t, err)

	_, _, err = m.SetMeta(ctx, SetMetaInput{
		Digests: nihash.Set{nihash.SHA256: sha, nihash.MD5: md5b},
		Size:    1,
	})
	require.ErrorIs(t, err, dgtserr.ErrDigestCollision)
}

func TestMarkDeletedAndForgetLifecycle(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()

	obj, _, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("lifecycle"), m.Algorithms()),
		Size:    5,
	})
	require.NoError(t, err)

	deleted, found, err := m.MarkDeleted(ctx, obj.EntryID, object.Now())
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, deleted.IsTombstone())

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
	require.Equal(t, uint64(1), st.Deleted)
	require.Equal(t, uint64(0), st.Bytes)

	ok, err := m.Forget(ctx, obj.EntryID)
	require.NoError(t, err)
	require.True(t, ok)

	st, err = m.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.Objects)
	require.Equal(t, uint64(0), st.Deleted)

	_, found, err = m.GetMeta(ctx, obj.EntryID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMarkDeletedNoopOnAlreadyTombstoned(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()

	obj, _, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("double delete"), m.Algorithms()),
		Size:    3,
	})
	require.NoError(t, err)

	first, _, err := m.MarkDeleted(ctx, obj.EntryID, object.Now())
	require.NoError(t, err)

	second, _, err := m.MarkDeleted(ctx, obj.EntryID, object.Now().Add(1000))
	require.NoError(t, err)
	require.Equal(t, first.DTime, second.DTime, "marking an already-tombstoned record deleted again must be a no-op")
}

func TestGetMetaByDigestResolvesAnyAlgorithm(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()
	digests := digestsFor([]byte("by digest"), m.Algorithms())

	obj, _, err := m.SetMeta(ctx, SetMetaInput{Digests: digests, Size: 9})
	require.NoError(t, err)

	got, found, err := m.GetMetaByDigest(ctx, digests[nihash.MD5])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, obj.EntryID, got.EntryID)

	got2, found, err := m.GetMetaByDigest(ctx, digests[nihash.SHA256])
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, obj.EntryID, got2.EntryID)
}

func TestListByTypeAndSizeRange(t *testing.T) {
	m := openTestDB(t)
	ctx := context.Background()

	_, _, err := m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("aaa"), m.Algorithms()), Size: 3, Type: "text/plain",
	})
	require.NoError(t, err)
	_, _, err = m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("bbbbbbbbbb"), m.Algorithms()), Size: 10, Type: "text/plain",
	})
	require.NoError(t, err)
	_, _, err = m.SetMeta(ctx, SetMetaInput{
		Digests: digestsFor([]byte("ccc"), m.Algorithms()), Size: 3, Type: "application/octet-stream",
	})
	require.NoError(t, err)

	hi := uint64(9)
	results, err := m.List(ctx, Filter{
		Type: []string{"text/plain"},
		Size: Range{Hi: &hi},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(3), results[0].Size)
}

func TestExpiredCacheSweepsPastEtime(t *testing.T) {
	// A cache record can only come from downgrading an existing
	// tombstone (spec §4.2 step 3: "¬was_cache ∧ is_cache: only
	// downgrade to cache if the old record was a tombstone").
	m := openTestDB(t)
	ctx := context.Background()
	digests := digestsFor([]byte("cached"), m.Algorithms())

	obj, _, err := m.SetMeta(ctx, SetMetaInput{Digests: digests, Size: 4})
	require.NoError(t, err)
	_, _, err = m.MarkDeleted(ctx, obj.EntryID, object.Now())
	require.NoError(t, err)

	past := object.Now().Add(-1000)
	cached, changed, err := m.SetMeta(ctx, SetMetaInput{
		Digests:       digests,
		Size:          4,
		Cache:         true,
		DTime:         past,
		DTimeSupplied: true,
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, cached.IsCache())

	expired, err := m.ExpiredCache(ctx, object.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, obj.EntryID, expired[0].EntryID)
}
