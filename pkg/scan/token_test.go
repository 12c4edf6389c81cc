package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTypeTrimsAndLowercases(t *testing.T) {
	got, err := NormalizeType("  TEXT/PLAIN  ", false)
	require.NoError(t, err)
	require.Equal(t, "text/plain", got)
}

func TestNormalizeEncodingAlias(t *testing.T) {
	got, err := NormalizeEncoding("X-GZIP", false)
	require.NoError(t, err)
	require.Equal(t, "gzip", got)
}

func TestNormalizeCharsetAlias(t *testing.T) {
	got, err := NormalizeCharset("UTF8", false)
	require.NoError(t, err)
	require.Equal(t, "utf-8", got)
}

func TestNormalizeEmptyIsEmpty(t *testing.T) {
	got, err := NormalizeType("", true)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNormalizeTypeStrictRejectsBadGrammar(t *testing.T) {
	_, err := NormalizeType("not-a-mime-type", true)
	require.Error(t, err)
}

func TestNormalizeTypeNonStrictDropsBadGrammar(t *testing.T) {
	got, err := NormalizeType("not-a-mime-type", false)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNormalizeLanguageUnderscoreToHyphen(t *testing.T) {
	got, err := NormalizeLanguage("EN_us", false)
	require.NoError(t, err)
	require.Equal(t, "en-us", got)
}

func TestNormalizeLanguageStrictRejectsBadGrammar(t *testing.T) {
	_, err := NormalizeLanguage("not_a_lang_tag!!", true)
	require.Error(t, err)
}
