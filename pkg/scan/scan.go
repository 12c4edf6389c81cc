// Package scan implements the one-pass multi-digest streaming scanner
// (spec §4.3): simultaneous hashing under every enabled algorithm, a
// bounded sample buffer for MIME sniffing, size tallying, and the
// content-vs-path-vs-caller media-type refinement rule.
package scan

import (
	"hash"
	"io"
	"mime"
	"path/filepath"

	"github.com/dgtstore/dgtstore/pkg/nihash"
)

// SampleSize is the minimum number of leading bytes retained for MIME
// sniffing (spec §4.3: "N >= 8192, enough for OOXML detection").
const SampleSize = 8192

// Options configures one Scan call.
type Options struct {
	// Sniffer performs content-based MIME detection on the sample. A
	// nil Sniffer defaults to DefaultSniffer{}.
	Sniffer Sniffer
	// FileName, if non-empty, is consulted for a path-based MIME hint
	// via mime.TypeByExtension.
	FileName string
	// CallerType is a type the caller asserts; see Result.Type's doc
	// comment for the refinement rule governing whether it wins.
	CallerType string
}

// Result is the outcome of one scan pass.
type Result struct {
	Digests nihash.Set
	Size    uint64
	// Type is the final media type after the refinement rule (spec
	// §4.3): content-based detection is refined by a path-based hint
	// when the path-based type is a refinement of it; a CallerType is
	// then honored only if the (possibly path-refined) detected type
	// is itself a refinement of CallerType — otherwise the detected
	// type wins outright.
	Type string
}

// Scan streams src through every algorithm in algos in a single pass,
// writing every byte read to dst (typically a blobstore temp-file),
// and returns the resulting digests, size, and detected media type.
func Scan(src io.Reader, dst io.Writer, algos []nihash.Algorithm, opts Options) (Result, error) {
	hashWriters := make([]io.Writer, 0, len(algos)+2)
	sums := make(map[nihash.Algorithm]hash.Hash, len(algos))
	for _, a := range algos {
		h := a.New()
		sums[a] = h
		hashWriters = append(hashWriters, h)
	}

	sample := newSampleBuffer(SampleSize)
	hashWriters = append(hashWriters, sample, dst)

	mw := io.MultiWriter(hashWriters...)
	n, err := io.Copy(mw, src)
	if err != nil {
		return Result{}, err
	}

	digests := make(nihash.Set, len(algos))
	for _, a := range algos {
		digests[a] = nihash.Digest{Algo: a, Raw: sums[a].Sum(nil)}
	}

	sniffer := opts.Sniffer
	if sniffer == nil {
		sniffer = DefaultSniffer{}
	}
	detected := sniffer.Detect(sample.Bytes())

	if opts.FileName != "" {
		if pathType := mime.TypeByExtension(filepath.Ext(opts.FileName)); pathType != "" {
			if isRefinementOf(pathType, detected) {
				detected = pathType
			}
		}
	}

	finalType := detected
	if opts.CallerType != "" && !isRefinementOf(detected, opts.CallerType) {
		finalType = detected
	} else if opts.CallerType != "" {
		finalType = opts.CallerType
	}

	return Result{Digests: digests, Size: uint64(n), Type: finalType}, nil
}

// isRefinementOf reports whether specific is a known, more precise
// classification that still generalizes to general (spec §4.3 uses
// this both for path-vs-content and caller-vs-detected comparisons).
// Identity always counts as a (trivial) refinement.
func isRefinementOf(specific, general string) bool {
	if specific == general {
		return true
	}
	for _, refined := range ooxmlFamily {
		if general == "application/zip" && specific == refined {
			return true
		}
	}
	return false
}

var ooxmlFamily = []string{ooxmlWordType, ooxmlSheetType, ooxmlSlideType}

// sampleBuffer is an io.Writer that retains only the first limit bytes
// written to it, discarding the rest (so a multi-gigabyte blob never
// grows the sample past SampleSize).
type sampleBuffer struct {
	buf   []byte
	limit int
}

func newSampleBuffer(limit int) *sampleBuffer {
	return &sampleBuffer{buf: make([]byte, 0, limit), limit: limit}
}

func (s *sampleBuffer) Write(p []byte) (int, error) {
	if room := s.limit - len(s.buf); room > 0 {
		if len(p) < room {
			s.buf = append(s.buf, p...)
		} else {
			s.buf = append(s.buf, p[:room]...)
		}
	}
	return len(p), nil
}

func (s *sampleBuffer) Bytes() []byte { return s.buf }
