package retrieve

import "sort"

// FusionWeights controls how lexical and dense scores combine. Defaults
// (0.4 lexical / 0.6 dense) come from spec.md §4.2.
type FusionWeights struct {
	Lexical float64
	Dense   float64
}

// DefaultFusionWeights matches pkg/config's Default().RetrievalConfig.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Lexical: 0.4, Dense: 0.6}
}

// fusionCandidate accumulates a chunk's per-strategy scores before the
// final min-max normalize + weighted sum pass.
type fusionCandidate struct {
	chunkID      string
	lexicalScore *float64
	denseScore   *float64
}

// Fuse combines lexical and dense result pools into one ranked list via
// min-max normalization per strategy followed by a weighted sum, with
// deterministic tie-breaking by chunk id (spec.md §8: "fusion is
// deterministic for a fixed input pool"). A chunk missing from one pool is
// treated as having a zero-contribution score from that strategy rather
// than being dropped — partial coverage should never zero out a winning
// single-strategy hit.
func Fuse(lexical []LexicalResult, dense []DenseResult, weights FusionWeights) []FusedResult {
	candidates := make(map[string]*fusionCandidate)

	for _, r := range lexical {
		score := r.Score
		candidates[r.ChunkID] = &fusionCandidate{chunkID: r.ChunkID, lexicalScore: &score}
	}
	for _, r := range dense {
		score := r.Score
		if c, ok := candidates[r.ChunkID]; ok {
			c.denseScore = &score
		} else {
			candidates[r.ChunkID] = &fusionCandidate{chunkID: r.ChunkID, denseScore: &score}
		}
	}

	lexMin, lexMax := minMax(lexical)
	denseMin, denseMax := minMaxDense(dense)

	results := make([]FusedResult, 0, len(candidates))
	for _, c := range candidates {
		var lexNorm, denseNorm float64
		if c.lexicalScore != nil {
			lexNorm = normalize(*c.lexicalScore, lexMin, lexMax)
		}
		if c.denseScore != nil {
			denseNorm = normalize(*c.denseScore, denseMin, denseMax)
		}
		fused := FusedResult{
			ChunkID:      c.chunkID,
			Score:        weights.Lexical*lexNorm + weights.Dense*denseNorm,
			LexicalScore: c.lexicalScore,
			DenseScore:   c.denseScore,
		}
		results = append(results, fused)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ChunkID < results[j].ChunkID
		}
		return results[i].Score > results[j].Score
	})
	return results
}

// FusedResult is one chunk's combined score after fusion, retaining the
// per-strategy contributions for the retriever's "degraded query" audit
// trail (spec.md §4.3).
type FusedResult struct {
	ChunkID      string
	Score        float64
	LexicalScore *float64
	DenseScore   *float64
}

func minMax(results []LexicalResult) (min, max float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

func minMaxDense(results []DenseResult) (min, max float64) {
	if len(results) == 0 {
		return 0, 0
	}
	min, max = results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max == min {
		if max == 0 {
			return 0
		}
		return 1
	}
	return (v - min) / (max - min)
}
