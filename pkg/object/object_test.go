package object

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgtstore/dgtstore/pkg/nihash"
)

func sampleObject() Object {
	return Object{
		Digests: nihash.Set{
			nihash.MD5:    nihash.Compute(nihash.MD5, []byte("x")),
			nihash.SHA256: nihash.Compute(nihash.SHA256, []byte("x")),
		},
		Size:     9,
		CTime:    Now(),
		MTime:    Now(),
		PTime:    Now(),
		Type:     "text/plain",
		Language: "en",
		Charset:  "utf-8",
		Encoding: "",
		Flags:    Flags(0).WithTypeState(Verified),
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	algos := []nihash.Algorithm{nihash.MD5, nihash.SHA256}
	o := sampleObject()

	rec := Pack(o, algos)
	got, err := Unpack(rec, algos)
	require.NoError(t, err)

	require.Equal(t, o.Size, got.Size)
	require.Equal(t, o.CTime, got.CTime)
	require.Equal(t, o.MTime, got.MTime)
	require.Equal(t, o.PTime, got.PTime)
	require.Equal(t, o.DTime, got.DTime)
	require.Equal(t, o.Type, got.Type)
	require.Equal(t, o.Language, got.Language)
	require.Equal(t, o.Charset, got.Charset)
	require.Equal(t, o.Encoding, got.Encoding)
	require.Equal(t, o.Flags, got.Flags)
	for _, a := range algos {
		require.Equal(t, o.Digests[a].Raw, got.Digests[a].Raw)
	}
}

func TestUnpackTruncated(t *testing.T) {
	algos := []nihash.Algorithm{nihash.SHA256}
	o := sampleObject()
	rec := Pack(o, algos)

	_, err := Unpack(rec[:len(rec)-5], algos)
	require.Error(t, err)
}

func TestLiveTombstoneCacheClassification(t *testing.T) {
	live := sampleObject()
	require.True(t, live.IsLive())
	require.False(t, live.IsTombstone())
	require.False(t, live.IsCache())

	tomb := live
	tomb.DTime = Now()
	require.False(t, tomb.IsLive())
	require.True(t, tomb.IsTombstone())

	cache := live
	cache.Flags = cache.Flags.WithCache(true)
	cache.DTime = Now().Add(time.Hour)
	require.False(t, cache.IsLive())
	require.False(t, cache.IsTombstone())
	require.True(t, cache.IsCache())
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Now().Round(time.Microsecond)
	ts := FromTime(now)
	require.True(t, now.Equal(ts.Time()))
	require.True(t, Zero.IsZero())
	require.False(t, ts.IsZero())
}
