package scan

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgtstore/dgtstore/pkg/nihash"
)

func TestScanDigestsAndSize(t *testing.T) {
	data := []byte("the quick brown fox")
	var dst bytes.Buffer

	res, err := Scan(bytes.NewReader(data), &dst, []nihash.Algorithm{nihash.SHA256, nihash.MD5}, Options{})
	require.NoError(t, err)

	require.Equal(t, uint64(len(data)), res.Size)
	require.Equal(t, data, dst.Bytes())

	want := sha256.Sum256(data)
	require.Equal(t, want[:], res.Digests[nihash.SHA256].Raw)
}

func TestScanDetectsPlainText(t *testing.T) {
	data := []byte("just some plain text content")
	var dst bytes.Buffer

	res, err := Scan(bytes.NewReader(data), &dst, []nihash.Algorithm{nihash.SHA256}, Options{})
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", res.Type)
}

func TestScanCallerTypeAcceptedWhenGeneralizesDetected(t *testing.T) {
	data := zipLocalFileHeader("word/document.xml")
	var dst bytes.Buffer

	res, err := Scan(bytes.NewReader(data), &dst, []nihash.Algorithm{nihash.SHA256}, Options{
		CallerType: "application/zip",
	})
	require.NoError(t, err)
	// detected ooxml type refines the caller's more general "application/zip"
	// assertion, so the caller's assertion is trusted as final.
	require.Equal(t, "application/zip", res.Type)
}

func TestScanCallerTypeOverriddenWhenUnrelated(t *testing.T) {
	data := []byte("just some plain text content")
	var dst bytes.Buffer

	res, err := Scan(bytes.NewReader(data), &dst, []nihash.Algorithm{nihash.SHA256}, Options{
		CallerType: "application/pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", res.Type)
}

func TestSampleBufferBoundedSize(t *testing.T) {
	sb := newSampleBuffer(4)
	n, err := sb.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, []byte("hell"), sb.Bytes())
}
