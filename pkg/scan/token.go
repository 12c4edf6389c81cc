package scan

import (
	"strings"

	"github.com/dgtstore/dgtstore/pkg/dgtserr"
)

// aliasTable maps known non-canonical tokens to their canonical form
// (spec §4.3: "map x-gzip->gzip, x-compress->compress, utf8->utf-8,
// etc").
var aliasTable = map[string]string{
	"x-gzip":     "gzip",
	"x-compress": "compress",
	"utf8":       "utf-8",
	"us-ascii":   "ascii",
}

// NormalizeType normalizes a media-type token: strip, lowercase, alias
// map, and (in strict mode) validate the "type/subtype" grammar.
func NormalizeType(raw string, strict bool) (string, error) {
	return normalizeToken(raw, strict, validTypeGrammar)
}

// NormalizeCharset normalizes a charset token.
func NormalizeCharset(raw string, strict bool) (string, error) {
	return normalizeToken(raw, strict, validSimpleGrammar)
}

// NormalizeEncoding normalizes a content-encoding token.
func NormalizeEncoding(raw string, strict bool) (string, error) {
	return normalizeToken(raw, strict, validSimpleGrammar)
}

// NormalizeLanguage normalizes an RFC5646 language tag: strip,
// lowercase, underscores become hyphens, trailing separators trimmed.
func NormalizeLanguage(raw string, strict bool) (string, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.Trim(t, "-")
	if t == "" {
		return "", nil
	}
	if alias, ok := aliasTable[t]; ok {
		t = alias
	}
	if !validLanguageGrammar(t) {
		if strict {
			return "", dgtserr.NewArgumentError("invalid language tag: "+raw, nil)
		}
		return "", nil
	}
	return t, nil
}

func normalizeToken(raw string, strict bool, grammar func(string) bool) (string, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return "", nil
	}
	if alias, ok := aliasTable[t]; ok {
		t = alias
	}
	if !grammar(t) {
		if strict {
			return "", dgtserr.NewArgumentError("invalid token: "+raw, nil)
		}
		return "", nil
	}
	return t, nil
}

func validTypeGrammar(t string) bool {
	i := strings.IndexByte(t, '/')
	if i <= 0 || i == len(t)-1 {
		return false
	}
	return validSimpleGrammar(t[:i]) && validSimpleGrammar(t[i+1:])
}

func validSimpleGrammar(t string) bool {
	if t == "" {
		return false
	}
	for _, r := range t {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '+' || r == '.':
		default:
			return false
		}
	}
	return true
}

func validLanguageGrammar(t string) bool {
	if t == "" {
		return false
	}
	for _, part := range strings.Split(t, "-") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
	}
	return true
}
