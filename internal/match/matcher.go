package match

import "strings"

// Thresholds for the fuzzy tier.
const (
	fuzzyThreshold      = 0.80
	durationToleranceMS = 1000
)

// Query describes one side of a same-track comparison. DurationMS is 0
// when the service did not report a duration.
type Query struct {
	Artist     string
	Title      string
	DurationMS int
}

// IsGoodMatch reports whether a search result refers to the same track
// as the query. It is a predicate, not a ranker — choosing the candidate
// is the caller's job.
//
// Tiers, tried in order, accepting on the first that passes:
//  1. Normalised containment: both artist and title are equal or one
//     contains the other after Normalize.
//  2. Transliterated containment: the same test after Transliterate on
//     both sides.
//  3. Fuzzy: similarity ratio ≥ 0.80 for both artist and title, taking
//     the maximum over plain and transliterated forms. When both
//     durations are known, a difference above 1000 ms rejects.
//
// Duration is only consulted on tier 3.
func IsGoodMatch(query, found Query) bool {
	qArtist := Normalize(query.Artist)
	qTitle := Normalize(query.Title)
	fArtist := Normalize(found.Artist)
	fTitle := Normalize(found.Title)

	// Tier 1: direct normalised comparison.
	artistOK := contains(qArtist, fArtist)
	titleOK := contains(qTitle, fTitle)

	if artistOK && titleOK {
		return true
	}

	// Tier 2: transliterated comparison. A side that already passed
	// tier 1 keeps its pass.
	qtArtist := Transliterate(qArtist)
	ftArtist := Transliterate(fArtist)
	qtTitle := Transliterate(qTitle)
	ftTitle := Transliterate(fTitle)

	if (artistOK || contains(qtArtist, ftArtist)) && (titleOK || contains(qtTitle, ftTitle)) {
		return true
	}

	// Tier 3: fuzzy with duration veto.
	fuzzyArtist := max(Ratio(qArtist, fArtist), Ratio(qtArtist, ftArtist))
	fuzzyTitle := max(Ratio(qTitle, fTitle), Ratio(qtTitle, ftTitle))

	if fuzzyArtist < fuzzyThreshold || fuzzyTitle < fuzzyThreshold {
		return false
	}

	if query.DurationMS > 0 && found.DurationMS > 0 {
		if abs(query.DurationMS-found.DurationMS) > durationToleranceMS {
			return false
		}
	}

	return true
}

// contains reports equality or substring containment in either direction.
func contains(a, b string) bool {
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// Ratio computes a length-normalised similarity in [0,1]:
// 2·LCS(a,b) / (len(a)+len(b)), over runes. Two empty strings are
// identical (ratio 1).
func Ratio(a, b string) float64 {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}

	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	// Single-row LCS dynamic programming.
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}

		prev, cur = cur, prev
	}

	lcs := prev[len(rb)]

	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}

	return n
}
