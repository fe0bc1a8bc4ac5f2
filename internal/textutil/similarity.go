package textutil

import "sort"

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Match is a candidate scored against a query.
type Match struct {
	Index int
	Score float64
}

// Rank scores every candidate against query and returns those at or above
// threshold, best first. Ties keep candidate order.
func Rank(query string, candidates []string, threshold float64) []Match {
	q := NewFingerprint(query)
	if q == nil {
		return nil
	}
	var matches []Match
	for i, candidate := range candidates {
		score := CosineSimilarity(q, NewFingerprint(candidate))
		if score >= threshold && score > 0 {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
