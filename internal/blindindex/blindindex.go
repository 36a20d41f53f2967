// Package blindindex derives the deterministic search tokens stored beside
// encrypted patient fields. Ciphertext produced by the codec is
// non-deterministic and therefore unsearchable; equality and prefix lookups
// are answered instead by set-containment over these keyed tokens.
//
// Each token is an HMAC-SHA256 of a normalised substring under the
// search-index key, truncated to 128 bits and hex encoded. Without the key an
// observer of the stored token set cannot run a dictionary attack against it.
package blindindex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

const (
	// DefaultMinPrefix and DefaultMaxPrefix bound the emitted prefix
	// lengths. They are part of the on-disk contract: changing them
	// invalidates every stored token set until a reindex.
	DefaultMinPrefix = 2
	DefaultMaxPrefix = 6

	// tokenBytes is the truncated HMAC width. 128 bits keeps the index
	// compact at negligible collision probability.
	tokenBytes = 16
)

// Generator turns normalised plaintext into search tokens.
type Generator struct {
	key       []byte
	minPrefix int
	maxPrefix int
}

// New returns a Generator keyed by the search-index key. Prefix bounds at or
// below zero fall back to the defaults.
func New(indexKey []byte, minPrefix, maxPrefix int) *Generator {
	if minPrefix <= 0 {
		minPrefix = DefaultMinPrefix
	}
	if maxPrefix <= 0 {
		maxPrefix = DefaultMaxPrefix
	}
	if maxPrefix < minPrefix {
		maxPrefix = minPrefix
	}
	key := make([]byte, len(indexKey))
	copy(key, indexKey)
	return &Generator{key: key, minPrefix: minPrefix, maxPrefix: maxPrefix}
}

// TokensFor derives the deduplicated, sorted token set for value. An input
// with no tokenizable content yields an empty set.
func (g *Generator) TokensFor(value string) []string {
	seen := make(map[string]struct{})
	for _, sub := range g.substrings(value) {
		seen[g.mac(sub)] = struct{}{}
	}
	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// substrings produces the plaintext substrings a value is indexed under:
// every word, every word prefix in [minPrefix, maxPrefix], and for words
// containing '@' the same again for each '@'-separated segment, so both
// "megan@example.com" and "example.com" match an email field.
func (g *Generator) substrings(value string) []string {
	var subs []string
	for _, word := range tokenize(value) {
		subs = appendWithPrefixes(subs, word, g.minPrefix, g.maxPrefix)
		if strings.Contains(word, "@") {
			for _, seg := range strings.Split(word, "@") {
				if seg != "" {
					subs = appendWithPrefixes(subs, seg, g.minPrefix, g.maxPrefix)
				}
			}
		}
	}
	return subs
}

func appendWithPrefixes(subs []string, word string, minPrefix, maxPrefix int) []string {
	subs = append(subs, word)
	runes := []rune(word)
	for n := minPrefix; n <= maxPrefix && n < len(runes); n++ {
		subs = append(subs, string(runes[:n]))
	}
	return subs
}

func (g *Generator) mac(sub string) string {
	h := hmac.New(sha256.New, g.key)
	h.Write([]byte(sub))
	return hex.EncodeToString(h.Sum(nil)[:tokenBytes])
}

// tokenize lowercases the input, maps every character outside the tokenizable
// alphabet to a separator, collapses separator runs and splits into words.
// Letters and digits are kept; '@', '.', '-' and apostrophes are kept inside words
// so emails and hyphenated names survive as single words.
func tokenize(value string) []string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		if isWordRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	var words []string
	for _, word := range strings.Fields(b.String()) {
		// Joiners only count inside a word; trailing "Dr." or a
		// dangling hyphen must not change the token.
		word = strings.Trim(word, "@.-'")
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '@' || r == '.' || r == '-' || r == '\'':
		return true
	}
	return false
}
