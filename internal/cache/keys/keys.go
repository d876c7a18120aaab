// Package keys builds the redis keys of the shared dedup sets.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// SetKey returns the key of the dedup set of kind under prefix, e.g.
// "ejquery:catchments:p=1a2b3c4d5e6f7a8b".
//
// The prefix is sanitized for readability; the hash suffix is taken over the
// raw prefix so two prefixes that sanitize alike still get distinct keys.
func SetKey(prefix, kind string) string {
	p := strings.TrimSpace(prefix)
	const maxPrefixLen = 64
	safe := sanitize(p)
	if len(safe) > maxPrefixLen {
		safe = safe[:maxPrefixLen]
	}
	return fmt.Sprintf("%s:%s:p=%016x", safe, sanitize(kind), xxhash.Sum64String(p))
}

// sanitize keeps ASCII letters, digits, ':' '_' '-'. Whitespace becomes '_',
// everything else '-', and runs of either collapse to one.
func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r <= unicode.MaxASCII && unicode.IsDigit(r))
}
