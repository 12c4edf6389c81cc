// Package nihash implements digest identifiers in the RFC6920 "ni:" URI
// form used throughout dgtstore to name blobs.
package nihash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// Algorithm identifies one of the supported digest functions.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha-1"
	SHA256 Algorithm = "sha-256"
	SHA384 Algorithm = "sha-384"
	SHA512 Algorithm = "sha-512"
)

// wireNames maps an Algorithm to the token used in "ni:" URIs.
var wireNames = map[Algorithm]string{
	MD5:    "md5",
	SHA1:   "sha-1",
	SHA256: "sha-256",
	SHA384: "sha-384",
	SHA512: "sha-512",
}

var fromWireName = func() map[string]Algorithm {
	m := make(map[string]Algorithm, len(wireNames))
	for a, w := range wireNames {
		m[w] = a
	}
	return m
}()

// Size returns the raw digest length in bytes for algo, or 0 if unknown.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return 16
	case SHA1:
		return 20
	case SHA256:
		return 32
	case SHA384:
		return 48
	case SHA512:
		return 64
	default:
		return 0
	}
}

// Valid reports whether a is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	return a.Size() != 0
}

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		panic(fmt.Sprintf("nihash: unknown algorithm %q", a))
	}
}

// AllAlgorithms lists every supported algorithm, in a fixed canonical
// order used for the packed entry record and for control.algorithms.
func AllAlgorithms() []Algorithm {
	return []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512}
}

// CanonicalOrder sorts algos into the fixed canonical order used by the
// packed entry record (spec §4.2). Unknown algorithms sort last, in
// lexical order amongst themselves.
func CanonicalOrder(algos []Algorithm) []Algorithm {
	rank := make(map[Algorithm]int, len(AllAlgorithms()))
	for i, a := range AllAlgorithms() {
		rank[a] = i
	}
	out := append([]Algorithm(nil), algos...)
	sort.Slice(out, func(i, j int) bool {
		ri, oki := rank[out[i]]
		rj, okj := rank[out[j]]
		if oki && okj {
			return ri < rj
		}
		if oki != okj {
			return oki
		}
		return out[i] < out[j]
	})
	return out
}

// Digest pairs an algorithm with its raw digest bytes.
type Digest struct {
	Algo Algorithm
	Raw  []byte
}

// Compute hashes b with algo and returns the resulting Digest.
func Compute(algo Algorithm, b []byte) Digest {
	h := algo.New()
	h.Write(b)
	return Digest{Algo: algo, Raw: h.Sum(nil)}
}

// Valid reports whether d carries a known algorithm and a raw digest of
// the correct length for it.
func (d Digest) Valid() bool {
	return d.Algo.Valid() && len(d.Raw) == d.Algo.Size()
}

// String renders d as an RFC6920 "ni:///<algo>;<base64url-no-padding>" URI.
func (d Digest) String() string {
	name, ok := wireNames[d.Algo]
	if !ok {
		name = string(d.Algo)
	}
	return fmt.Sprintf("ni:///%s;%s", name, base64.RawURLEncoding.EncodeToString(d.Raw))
}

// Parse decodes an RFC6920 "ni:" URI into a Digest.
func Parse(uri string) (Digest, error) {
	const prefix = "ni:///"
	if !strings.HasPrefix(uri, prefix) {
		return Digest{}, fmt.Errorf("nihash: not an ni: URI: %q", uri)
	}
	rest := uri[len(prefix):]
	i := strings.IndexByte(rest, ';')
	if i < 0 {
		return Digest{}, fmt.Errorf("nihash: malformed ni: URI: %q", uri)
	}
	algoName, b64 := rest[:i], rest[i+1:]
	algo, ok := fromWireName[strings.ToLower(algoName)]
	if !ok {
		return Digest{}, fmt.Errorf("nihash: unsupported algorithm %q", algoName)
	}
	raw, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return Digest{}, fmt.Errorf("nihash: invalid base64 in ni: URI: %w", err)
	}
	d := Digest{Algo: algo, Raw: raw}
	if !d.Valid() {
		return Digest{}, fmt.Errorf("nihash: digest length %d invalid for %s", len(raw), algo)
	}
	return d, nil
}

// Set is a digest mapping keyed by algorithm, as stored on an Object.
type Set map[Algorithm]Digest

// Clone returns a shallow copy of s (raw byte slices are shared, but s
// itself and its Digest values may be mutated independently).
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Algorithms returns the algorithms present in s, in canonical order.
func (s Set) Algorithms() []Algorithm {
	algos := make([]Algorithm, 0, len(s))
	for a := range s {
		algos = append(algos, a)
	}
	return CanonicalOrder(algos)
}
