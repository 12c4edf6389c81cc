package scan

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// zipLocalFileHeader builds a minimal synthetic zip local file header
// (signature + fixed fields + name) for a zero-length, stored entry
// named name, enough for refineOOXML to read the part-name prefix.
func zipLocalFileHeader(name string) []byte {
	buf := make([]byte, 30+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], 0x04034b50)
	// version, flags, method, time, date, crc32, compressed/uncompressed
	// size all zero for this synthetic empty entry.
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(buf[28:30], 0)
	copy(buf[30:], name)
	return buf
}

func TestRefineOOXMLWord(t *testing.T) {
	sample := zipLocalFileHeader("word/document.xml")
	got, ok := refineOOXML(sample)
	require.True(t, ok)
	require.Equal(t, ooxmlWordType, got)
}

func TestRefineOOXMLSheet(t *testing.T) {
	sample := zipLocalFileHeader("xl/workbook.xml")
	got, ok := refineOOXML(sample)
	require.True(t, ok)
	require.Equal(t, ooxmlSheetType, got)
}

func TestRefineOOXMLNoMatch(t *testing.T) {
	sample := zipLocalFileHeader("META-INF/container.xml")
	_, ok := refineOOXML(sample)
	require.False(t, ok)
}

func TestRefineOOXMLNotAZip(t *testing.T) {
	_, ok := refineOOXML([]byte("plain text, not a zip at all"))
	require.False(t, ok)
}

func TestDefaultSnifferPlainText(t *testing.T) {
	s := DefaultSniffer{}
	got := s.Detect([]byte("hello, world\n"))
	require.Equal(t, "text/plain; charset=utf-8", got)
}

func TestDefaultSnifferOOXML(t *testing.T) {
	s := DefaultSniffer{}
	sample := zipLocalFileHeader("word/document.xml")
	got := s.Detect(sample)
	require.Equal(t, ooxmlWordType, got)
}
