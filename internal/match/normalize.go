// Package match contains the pure text-matching functions the sync
// engine uses to resolve cross-service track identity: normalisation,
// transliteration, a tiered same-track predicate, and the single-pass
// cross-match over two liked-track lists.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// keySeparator joins the normalised artist and title into a match key.
// The sequence never survives normalisation, so keys cannot collide
// across the artist/title boundary.
const keySeparator = "|||"

var (
	// "(feat. X)" / "[ft. X]" clauses.
	featParenRe = regexp.MustCompile(`(?i)\s*[([](feat\.?|ft\.?|featuring)\s+[^)\]]*[)\]]`)
	// Inline "... feat. X" tail, everything after the marker included.
	featInlineRe = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)
	// Any remaining parenthesised or bracketed content (remix tags etc).
	parenRe = regexp.MustCompile(`\s*[([][^)\]]*[)\]]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize reduces a track title or artist name to a canonical matching
// form. The pipeline, in order: NFKD compatibility decomposition, case
// folding, removal of parenthesised and inline feat./ft./featuring
// clauses, removal of remaining parenthesised content, stripping of all
// non-word non-whitespace runes, whitespace collapse.
//
// The function is total and idempotent: Normalize(Normalize(s)) ==
// Normalize(s) for every s.
func Normalize(text string) string {
	text = norm.NFKD.String(text)
	text = strings.ToLower(text)
	text = featParenRe.ReplaceAllString(text, "")
	text = featInlineRe.ReplaceAllString(text, "")
	text = parenRe.ReplaceAllString(text, "")
	text = stripNonWord(text)
	text = spaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// stripNonWord drops every rune that is not a letter, digit, underscore,
// or whitespace. Combining marks left over from NFKD decomposition are
// dropped here too, so "café" and "cafe" normalise identically.
func stripNonWord(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Key builds the normalised "artist|||title" key used for O(n)
// cross-matching of two liked-track lists.
func Key(artist, title string) string {
	return Normalize(artist) + keySeparator + Normalize(title)
}
