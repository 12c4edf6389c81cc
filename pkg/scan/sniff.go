package scan

import (
	"encoding/binary"
	"net/http"
	"strings"
)

// Sniffer detects a media type from a byte sample. It is the
// "external oracle" spec §4.3 treats MIME sniffing as — a consumer may
// substitute any implementation (a wrapped
// github.com/gabriel-vasile/mimetype call, a magic-number service,
// etc); dgtstore only ships a stdlib-based default so that using the
// library never forces a sniffing dependency on a consumer who doesn't
// want one.
type Sniffer interface {
	Detect(sample []byte) string
}

// DefaultSniffer wraps net/http.DetectContentType with an OOXML
// refinement pass: DetectContentType alone only ever returns the
// generic "application/zip" for docx/xlsx/pptx, since the interesting
// part-name information lives in the zip's local file headers, not in
// its magic number.
type DefaultSniffer struct{}

func (DefaultSniffer) Detect(sample []byte) string {
	base := http.DetectContentType(sample)
	if base != "application/zip" {
		return base
	}
	if refined, ok := refineOOXML(sample); ok {
		return refined
	}
	return base
}

const ooxmlWordType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
const ooxmlSheetType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
const ooxmlSlideType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// refineOOXML scans the zip local file header entries present in
// sample (not the central directory, which usually sits past the
// sample window) for the part-name prefixes that distinguish Word,
// Excel, and PowerPoint OOXML packages. This only needs the first few
// entries, which is why an 8192-byte sample is enough (spec §4.3).
func refineOOXML(sample []byte) (string, bool) {
	const localFileHeaderSig = 0x04034b50
	off := 0
	for off+30 <= len(sample) {
		if binary.LittleEndian.Uint32(sample[off:off+4]) != localFileHeaderSig {
			break
		}
		nameLen := int(binary.LittleEndian.Uint16(sample[off+26 : off+28]))
		extraLen := int(binary.LittleEndian.Uint16(sample[off+28 : off+30]))
		nameStart := off + 30
		nameEnd := nameStart + nameLen
		if nameEnd > len(sample) {
			break
		}
		name := string(sample[nameStart:nameEnd])
		switch {
		case strings.HasPrefix(name, "word/"):
			return ooxmlWordType, true
		case strings.HasPrefix(name, "xl/"):
			return ooxmlSheetType, true
		case strings.HasPrefix(name, "ppt/"):
			return ooxmlSlideType, true
		}

		compressedSize := int(binary.LittleEndian.Uint32(sample[off+18 : off+22]))
		off = nameEnd + extraLen + compressedSize
	}
	return "", false
}
