package nihash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestURIRoundTrip(t *testing.T) {
	for _, algo := range AllAlgorithms() {
		d := Compute(algo, []byte("some data"))
		require.True(t, d.Valid())

		uri := d.String()
		parsed, err := Parse(uri)
		require.NoError(t, err)
		require.Equal(t, d.Algo, parsed.Algo)
		require.Equal(t, d.Raw, parsed.Raw)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-uri")
	require.Error(t, err)

	_, err = Parse("ni:///sha-256;")
	require.Error(t, err) // empty digest fails the algorithm's length check
}

func TestParseRejectsWrongLength(t *testing.T) {
	// sha-256 digests must be 32 bytes; this base64 is too short.
	_, err := Parse("ni:///sha-256;AAAA")
	require.Error(t, err)
}

func TestCanonicalOrder(t *testing.T) {
	in := []Algorithm{SHA512, MD5, SHA256}
	out := CanonicalOrder(in)
	require.Equal(t, []Algorithm{MD5, SHA256, SHA512}, out)
}

func TestSetClone(t *testing.T) {
	s := Set{MD5: Compute(MD5, []byte("x"))}
	clone := s.Clone()
	clone[SHA1] = Compute(SHA1, []byte("y"))
	require.Len(t, s, 1)
	require.Len(t, clone, 2)
}
