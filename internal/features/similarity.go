package features

// Similarity primitives used system-wide. Relationship and drift scoring
// depend on these exact formulas; do not approximate them.

// TextSimilarity returns the Jaccard similarity between the word sets of
// two free-text strings. Two empty texts score 0.
func TextSimilarity(a, b string) float64 {
	return SetSimilarity(Tokenize(a), Tokenize(b))
}

// SetSimilarity returns the Jaccard similarity |A∩B| / |A∪B| between two
// string collections, treated as sets. An empty union scores 0.
func SetSimilarity(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// RatioSimilarity returns min/max for two non-negative scalars: 1 when both
// are the identical zero value, 0 when only one is zero.
func RatioSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	if a == 0 || b == 0 {
		return 0
	}
	if a < 0 || b < 0 {
		return 0
	}
	if a < b {
		return a / b
	}
	return b / a
}
