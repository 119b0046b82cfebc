// Package text extracts recommendation terms from track metadata and formats playback times.
package text

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MinKeywordLength is the shortest title token kept as a keyword.
	MinKeywordLength = 3
	secondsPerMinute = 60
)

var (
	artistSeparatorRegex = regexp.MustCompile(`[,&、，]`)
	nonWordRegex         = regexp.MustCompile(`[^\w\s]`)
	whitespaceRegex      = regexp.MustCompile(`\s+`)

	stopWords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
		"be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
		"do": true, "does": true, "did": true, "will": true, "would": true, "could": true,
		"should": true, "may": true, "might": true, "must": true, "can": true,
		"this": true, "that": true, "these": true, "those": true,
		"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
		"me": true, "him": true, "her": true, "us": true, "them": true,
	}
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// SplitArtists splits a multi-artist field on comma, ampersand and the CJK separators.
func (p *Parser) SplitArtists(artist string) []string {
	var artists []string
	for _, part := range artistSeparatorRegex.Split(artist, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			artists = append(artists, part)
		}
	}
	return artists
}

// Keywords lowercases a title, blanks out punctuation and returns the tokens
// that are long enough and not stop words. Order follows the title.
func (p *Parser) Keywords(title string) []string {
	cleaned := nonWordRegex.ReplaceAllString(strings.ToLower(title), " ")

	var keywords []string
	for _, word := range whitespaceRegex.Split(cleaned, -1) {
		if len([]rune(word)) < MinKeywordLength || stopWords[word] {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

// IsStopWord reports whether word is ignored during keyword extraction.
func (p *Parser) IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}

// FormatTime renders seconds as M:SS. Negative input renders as 0:00.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/secondsPerMinute, total%secondsPerMinute)
}

// ParseDuration parses "m:ss" or "h:mm:ss" into seconds.
func ParseDuration(duration string) (float64, error) {
	duration = strings.TrimSpace(duration)
	if duration == "" {
		return 0, fmt.Errorf("empty duration")
	}

	parts := strings.Split(duration, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", duration)
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", duration)
		}
		total = total*secondsPerMinute + n
	}
	return float64(total), nil
}
