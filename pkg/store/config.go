package store

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
	"github.com/dgtstore/dgtstore/pkg/nihash"
)

// Config configures Open (spec §6 "Configuration options").
type Config struct {
	// Dir is the root directory; required.
	Dir string
	// Algorithms is the subset of supported digest algorithms to
	// compute and index; defaults to all of them.
	Algorithms []nihash.Algorithm
	// Primary must be in Algorithms; defaults to sha-256.
	Primary nihash.Algorithm
	// MapSize is the memory-map byte size, accepting a decimal integer
	// with unit suffix [kmgtpeKMGTPE] (lowercase=x1000, uppercase=
	// x1024), parsed by mapSizeBytes using github.com/c2h5oh/datasize's
	// binary-unit constants. Empty defaults to the kv layer's own
	// default (1GiB).
	MapSize string
	// Umask masks mode bits of created files/directories.
	Umask os.FileMode
	// Expiry is the default cache-record expiry window; zero defaults
	// to metadb.DefaultExpiry.
	Expiry time.Duration
	// Legacy opens Dir as a pre-v1 (schema v0) store, read-only until
	// UpgradeToV1 runs (see DESIGN.md's "v0-vs-fresh ambiguity" note:
	// this is the caller's explicit signal, not auto-detected).
	Legacy bool
	// Logger receives structured open/close/settle/sweep diagnostics;
	// a nil Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// decimalPowers maps a lowercase unit letter to its power-of-1000
// exponent (spec §6 "mapsize": "lowercase=x1000").
var decimalPowers = map[byte]uint64{'k': 1, 'm': 2, 'g': 3, 't': 4, 'p': 5, 'e': 6}

// binaryUnits maps an uppercase unit letter to the matching power-of-
// 1024 constant from github.com/c2h5oh/datasize (spec §6 "mapsize":
// "uppercase=x1024"). datasize.ByteSize.UnmarshalText lowercases its
// unit token before matching, so it cannot itself distinguish "1m"
// from "1M" — mapSizeBytes does that split itself and only reuses the
// library's binary-unit constants for the uppercase half.
var binaryUnits = map[byte]datasize.ByteSize{
	'K': datasize.KB, 'M': datasize.MB, 'G': datasize.GB,
	'T': datasize.TB, 'P': datasize.PB, 'E': datasize.EB,
}

// mapSizeBytes parses MapSize, returning 0 (kv-layer default) if unset.
// The grammar is a decimal integer followed by an optional single unit
// letter in [kmgtpeKMGTPE], with an optional trailing "b"/"B" (spec §6):
// lowercase multiplies by a power of 1000, uppercase by a power of 1024.
func (c Config) mapSizeBytes() (int64, error) {
	if c.MapSize == "" {
		return 0, nil
	}
	raw := c.MapSize

	i := 0
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, dgtserr.NewArgumentError("invalid mapsize "+raw, nil)
	}
	val, err := strconv.ParseUint(raw[:i], 10, 64)
	if err != nil {
		return 0, dgtserr.NewArgumentError("invalid mapsize "+raw, err)
	}

	suffix := raw[i:]
	if suffix == "" {
		return int64(val), nil
	}
	unit, rest := suffix[0], suffix[1:]
	if rest != "" && !strings.EqualFold(rest, "b") {
		return 0, dgtserr.NewArgumentError("invalid mapsize "+raw, nil)
	}

	if pow, ok := decimalPowers[unit]; ok {
		mult := uint64(1)
		for j := uint64(0); j < pow; j++ {
			mult *= 1000
		}
		return int64(val * mult), nil
	}
	if bu, ok := binaryUnits[unit]; ok {
		return int64(val * uint64(bu)), nil
	}
	return 0, dgtserr.NewArgumentError("invalid mapsize "+raw, nil)
}
