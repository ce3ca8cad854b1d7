package match

import "github.com/tunesync/tunesync/internal/track"

// Pair is one cross-matched track: the same recording observed on both
// services at the same time.
type Pair struct {
	A          track.Remote
	B          track.Remote
	Confidence float64
}

// CrossMatch pairs two liked-track lists by match key in a single pass.
// It builds a multimap from Key(artist, title) over listB, then walks
// listA in order, consuming one same-keyed B entry per A entry. Entries
// that find a partner this way are emitted with confidence 1.0; the rest
// come back as the unmatched remainders of each side. Within a key
// bucket, B entries are consumed in their original list order.
func CrossMatch(listA, listB []track.Remote) (matches []Pair, unmatchedA, unmatchedB []track.Remote) {
	buckets := make(map[string][]int, len(listB))
	for i, t := range listB {
		k := Key(t.Artist, t.Title)
		buckets[k] = append(buckets[k], i)
	}

	consumed := make([]bool, len(listB))

	for _, a := range listA {
		k := Key(a.Artist, a.Title)

		queue := buckets[k]
		if len(queue) == 0 {
			unmatchedA = append(unmatchedA, a)
			continue
		}

		i := queue[0]
		buckets[k] = queue[1:]
		consumed[i] = true

		matches = append(matches, Pair{A: a, B: listB[i], Confidence: 1.0})
	}

	for i, t := range listB {
		if !consumed[i] {
			unmatchedB = append(unmatchedB, t)
		}
	}

	return matches, unmatchedA, unmatchedB
}
