package embedding

import (
	"fmt"
	"math"
	"sort"
)

// SimilarityResult pairs a corpus index with its similarity to a query.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// CosineSimilarity computes the cosine similarity between two vectors.
// A zero-magnitude vector yields similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding: vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// TopK ranks the corpus by cosine similarity to query and returns the k best
// matches, highest first. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 || len(corpus) == 0 {
		return nil
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results
}
