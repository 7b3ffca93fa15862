package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"finintel/pkg/domain"
	"finintel/pkg/llm"
)

// Reranker scores a small fused-result pool against the original query
// using an llm.Provider as a cross-encoder-style judge — a prompted
// listwise relevance scorer rather than a trained cross-encoder model,
// since nothing in the retrieval pack trains or serves one. Grounded on
// the same Provider.GenerateResponse call shape pkg/llm's Manager already
// uses for the orchestrator's classify/compose stages.
type Reranker struct {
	provider llm.Provider
}

func NewReranker(provider llm.Provider) *Reranker {
	return &Reranker{provider: provider}
}

const rerankSystemPrompt = `You score how relevant a passage is to a financial-analysis question.
Respond with a single integer from 0 to 100. Higher means more relevant.
Respond with the number only, no words.`

// Rerank scores each candidate chunk against query and returns the pool
// re-sorted by rerank score descending. A chunk whose scoring call fails
// keeps its original fused score scaled to the 0-100 band, so one
// provider hiccup degrades gracefully instead of dropping the chunk
// (spec.md §4.3: retrieval degrades, it does not fail outright).
func (r *Reranker) Rerank(ctx context.Context, query string, pool []ScoredCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, len(pool))
	copy(out, pool)

	for i := range out {
		prompt := fmt.Sprintf("Question: %s\n\nPassage:\n%s", query, out[i].Chunk.Text)
		response, err := r.provider.GenerateResponse(ctx, prompt, rerankSystemPrompt, nil)
		score, parseErr := parseRerankScore(response)
		if err != nil || parseErr != nil {
			fallback := out[i].FusedScore * 100
			out[i].RerankScore = &fallback
			continue
		}
		out[i].RerankScore = &score
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := scoreOf(out[i]), scoreOf(out[j])
		if si == sj {
			return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
		}
		return si > sj
	})
	return out
}

func scoreOf(c ScoredCandidate) float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.FusedScore * 100
}

func parseRerankScore(response string) (float64, error) {
	trimmed := strings.TrimSpace(response)
	// Tolerate a model that wraps the number in a short sentence anyway.
	fields := strings.Fields(trimmed)
	for _, f := range fields {
		f = strings.Trim(f, ".,:%")
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("no numeric score found in rerank response: %q", response)
}

// ScoredCandidate carries a chunk through fusion and rerank together,
// matching domain.ScoredChunk's shape but keeping the fused score around
// (domain.ScoredChunk.Score is the retriever's final answer).
type ScoredCandidate struct {
	Chunk        domain.Chunk
	FusedScore   float64
	LexicalScore *float64
	DenseScore   *float64
	RerankScore  *float64
}

func (c ScoredCandidate) ToScoredChunk() domain.ScoredChunk {
	score := c.FusedScore
	if c.RerankScore != nil {
		score = *c.RerankScore / 100
	}
	return domain.ScoredChunk{
		Chunk:        c.Chunk,
		Score:        score,
		LexicalScore: c.LexicalScore,
		DenseScore:   c.DenseScore,
		RerankScore:  c.RerankScore,
	}
}
