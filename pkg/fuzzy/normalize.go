// Package fuzzy matches video ids echoed back by the player and folds free-text terms.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Match describes how a candidate id matched a target.
type Match int

const (
	// MatchNone means no candidate matched.
	MatchNone Match = iota
	// MatchExact is a byte-for-byte match.
	MatchExact
	// MatchCaseInsensitive matched after case folding.
	MatchCaseInsensitive
	// MatchSubstring matched by containment in either direction.
	MatchSubstring
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchCaseInsensitive:
		return "case-insensitive"
	case MatchSubstring:
		return "substring"
	default:
		return "none"
	}
}

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// MatchID returns the index of the best candidate for target.
// Exact matches win over case-insensitive ones, which win over substring containment.
// Within a tier the lowest index wins. It returns -1 and MatchNone when nothing matches.
func (n *Normalizer) MatchID(candidates []string, target string) (int, Match) {
	if target == "" {
		return -1, MatchNone
	}

	for i, c := range candidates {
		if c == target {
			return i, MatchExact
		}
	}

	for i, c := range candidates {
		if strings.EqualFold(c, target) {
			return i, MatchCaseInsensitive
		}
	}

	lowerTarget := strings.ToLower(target)
	for i, c := range candidates {
		if c == "" {
			continue
		}
		lc := strings.ToLower(c)
		if strings.Contains(lc, lowerTarget) || strings.Contains(lowerTarget, lc) {
			return i, MatchSubstring
		}
	}

	return -1, MatchNone
}

// Fold returns a comparison key for a free-text term: NFKD, marks removed,
// lowercased, whitespace collapsed. Punctuation is kept.
func (n *Normalizer) Fold(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}

	text = whitespaceRegex.ReplaceAllString(result.String(), " ")
	return strings.TrimSpace(strings.ToLower(text))
}
