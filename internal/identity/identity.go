// Package identity maps competitor display names to stable identity keys.
// Keying is deliberately forgiving: the same company supplied as
// "Acme Inc.", "acme" or "ACME,  Inc" across runs must resolve to one key,
// otherwise re-runs would create duplicate rows in the external store.
package identity

import (
	"strings"
	"unicode"
)

// Key is a normalized, case-insensitive identifier for one tracked
// competitor. It is stable across runs and across display-name drift.
type Key string

// defaultSuffixes are corporate suffixes stripped from the end of a name
// before keying. Punctuation is removed first, so "Inc." matches "inc".
var defaultSuffixes = []string{
	"incorporated",
	"corporation",
	"limited",
	"corp",
	"gmbh",
	"inc",
	"llc",
	"ltd",
	"plc",
	"ag",
	"co",
	"sa",
}

// Resolver turns display names into identity keys.
// The zero value is not usable; construct with NewResolver.
type Resolver struct {
	suffixes []string
}

// NewResolver creates a resolver with the given suffix list. An empty list
// selects the default corporate suffixes.
func NewResolver(suffixes []string) *Resolver {
	if len(suffixes) == 0 {
		suffixes = defaultSuffixes
	}
	normalized := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		s = stripPunctuation(s)
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	return &Resolver{suffixes: normalized}
}

// Resolve maps a display name to its identity key. It is deterministic and
// total: every input maps to exactly one key. Two display names resolving to
// the same key are the same competitor by policy, not an error.
func (r *Resolver) Resolve(displayName string) Key {
	s := strings.ToLower(strings.TrimSpace(displayName))
	s = stripPunctuation(s)
	s = collapseWhitespace(s)

	// Strip trailing corporate suffixes, repeatedly: "acme holdings inc llc"
	// reduces to "acme holdings".
	for {
		stripped := r.stripOneSuffix(s)
		if stripped == s {
			break
		}
		s = stripped
	}

	return Key(s)
}

func (r *Resolver) stripOneSuffix(s string) string {
	for _, suffix := range r.suffixes {
		trimmed := strings.TrimSuffix(s, " "+suffix)
		if trimmed != s {
			return strings.TrimSpace(trimmed)
		}
	}
	return s
}

// stripPunctuation removes everything except letters, digits and spaces.
// Separator punctuation becomes a space so "acme-corp" keys like "acme corp".
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '/' || r == '&':
			b.WriteByte(' ')
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
