package store

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgtstore/dgtstore/pkg/nihash"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), Config{Dir: dir, MapSize: "64MB"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obj, err := s.Add(ctx, strings.NewReader("some data"), AddOptions{})
	require.NoError(t, err)
	require.Equal(t, uint64(9), obj.Size)
	require.Equal(t, "text/plain; charset=utf-8", obj.Type)

	primary, ok := obj.Digest(s.meta.Primary())
	require.True(t, ok)

	got, thunk, found, err := s.Get(ctx, primary)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, obj.EntryID, got.EntryID)

	rc, err := thunk()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "some data", string(data))
}

func TestAddIsIdempotentForIdenticalContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Add(ctx, strings.NewReader("repeat me"), AddOptions{})
	require.NoError(t, err)

	second, err := s.Add(ctx, strings.NewReader("repeat me"), AddOptions{})
	require.NoError(t, err)

	require.Equal(t, first.EntryID, second.EntryID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
}

func TestRemoveThenForget(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	obj, err := s.Add(ctx, strings.NewReader("doomed"), AddOptions{})
	require.NoError(t, err)
	primary, _ := obj.Digest(s.meta.Primary())

	removed, _, found, err := s.Remove(ctx, primary)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, removed.IsTombstone())

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Objects)
	require.Equal(t, uint64(1), st.Deleted)

	_, _, found, err = s.Forget(ctx, primary)
	require.NoError(t, err)
	require.True(t, found)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.Objects)

	_, _, found, err = s.Get(ctx, primary)
	require.NoError(t, err)
	require.False(t, found)
}

func TestListAcrossAddedObjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, strings.NewReader("short"), AddOptions{})
	require.NoError(t, err)
	_, err = s.Add(ctx, strings.NewReader("a rather longer piece of content"), AddOptions{})
	require.NoError(t, err)

	hi := uint64(10)
	results, err := s.List(ctx, Filter{
		Type: []string{"text/plain; charset=utf-8"},
		Size: Range{Hi: &hi},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(5), results[0].Size)
}

func TestGetMissingDigestReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing := nihash.Compute(nihash.SHA256, []byte("never added"))
	_, _, found, err := s.Get(ctx, missing)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAddCacheEntrySweptOnExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A fresh write may only become a cache record by downgrading an
	// existing tombstone (spec §4.2 step 3), so this goes through the
	// same add -> remove -> re-add sequence a real caller would.
	added, err := s.Add(ctx, strings.NewReader("ephemeral"), AddOptions{})
	require.NoError(t, err)
	primary, ok := added.Digest(s.meta.Primary())
	require.True(t, ok)

	_, _, _, err = s.Remove(ctx, primary)
	require.NoError(t, err)

	_, err = s.Add(ctx, strings.NewReader("ephemeral"), AddOptions{
		Cache: true,
		ETime: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	got, _, found, err := s.Get(ctx, primary)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.IsCache())

	swept, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	_, _, found, err = s.Get(ctx, primary)
	require.NoError(t, err)
	require.False(t, found)
}

func TestOpenRefusesConcurrentLock(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(ctx, Config{Dir: dir, MapSize: "64MB"})
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(ctx, Config{Dir: dir, MapSize: "64MB"})
	require.Error(t, err)
}
