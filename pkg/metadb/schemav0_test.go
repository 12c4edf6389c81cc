package metadb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgtstore/dgtstore/pkg/kv"
	"github.com/dgtstore/dgtstore/pkg/kv/mdbxkv"
	"github.com/dgtstore/dgtstore/pkg/nihash"
	"github.com/dgtstore/dgtstore/pkg/object"
)

func openLegacyTestDB(t *testing.T) (*MetaDB, nihash.Digest) {
	t.Helper()
	dir := t.TempDir()

	kvdb, err := mdbxkv.Open(SchemaV0(), mdbxkv.Options{Path: dir, MapSize: 64 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { kvdb.Close() })

	digest := nihash.Compute(nihash.SHA256, []byte("legacy blob"))
	o := object.Object{
		Size:     11,
		CTime:    object.Now(),
		MTime:    object.Now(),
		Type:     "text/plain",
		Language: "en",
	}
	rec := packV0(o)
	err = kvdb.Update(context.Background(), func(tx kv.RwTx) error {
		return tx.Put(TableEntry, digest.Raw, rec)
	})
	require.NoError(t, err)

	m, err := OpenLegacy(context.Background(), kvdb, nihash.SHA256)
	require.NoError(t, err)
	return m, digest
}

func TestOpenLegacyRejectsV1Store(t *testing.T) {
	dir := t.TempDir()
	algos := []nihash.Algorithm{nihash.SHA256}
	kvdb, err := mdbxkv.Open(SchemaV1(algos), mdbxkv.Options{Path: dir, MapSize: 64 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { kvdb.Close() })

	_, err = Open(context.Background(), kvdb, OpenOptions{Algorithms: algos})
	require.NoError(t, err)

	_, err = OpenLegacy(context.Background(), kvdb, nihash.SHA256)
	require.Error(t, err)
}

func TestGetMetaV0(t *testing.T) {
	m, digest := openLegacyTestDB(t)

	got, found, err := m.GetMetaV0(context.Background(), digest.Raw)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(11), got.Size)
	require.Equal(t, "text/plain", got.Type)
	require.Equal(t, "en", got.Language)
}

func TestLegacyStoreRefusesWrites(t *testing.T) {
	m, _ := openLegacyTestDB(t)

	_, _, err := m.SetMeta(context.Background(), SetMetaInput{})
	require.Error(t, err)

	_, _, err = m.MarkDeleted(context.Background(), 1, object.Now())
	require.Error(t, err)

	_, err = m.Forget(context.Background(), 1)
	require.Error(t, err)
}

func TestUpgradeToV1MigratesRecords(t *testing.T) {
	legacy, digest := openLegacyTestDB(t)

	dir := t.TempDir()
	algos := []nihash.Algorithm{nihash.SHA256}
	kvdb, err := mdbxkv.Open(SchemaV1(algos), mdbxkv.Options{Path: dir, MapSize: 64 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { kvdb.Close() })

	target, err := Open(context.Background(), kvdb, OpenOptions{Algorithms: algos, Primary: nihash.SHA256})
	require.NoError(t, err)

	n, err := UpgradeToV1(context.Background(), legacy, target, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, found, err := target.GetMetaByDigest(context.Background(), digest)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(11), got.Size)
	require.Equal(t, "text/plain", got.Type)

	st, err := target.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
}
