package retrieve

import (
	"context"
	"fmt"
	"testing"

	"finintel/pkg/domain"
)

type fakeProvider struct {
	responses map[string]string
	err       error
}

func (f *fakeProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.responses[prompt], nil
}

func TestRerankerSortsByParsedScore(t *testing.T) {
	pool := []ScoredCandidate{
		{Chunk: domain.Chunk{ChunkID: "low", Text: "irrelevant passage"}, FusedScore: 0.5},
		{Chunk: domain.Chunk{ChunkID: "high", Text: "relevant passage"}, FusedScore: 0.4},
	}
	provider := &fakeProvider{responses: map[string]string{
		"Question: ricavi\n\nPassage:\nirrelevant passage": "10",
		"Question: ricavi\n\nPassage:\nrelevant passage":   "95",
	}}
	reranker := NewReranker(provider)

	out := reranker.Rerank(context.Background(), "ricavi", pool)
	if out[0].Chunk.ChunkID != "high" {
		t.Fatalf("expected high-scoring passage first, got %s", out[0].Chunk.ChunkID)
	}
	if out[0].RerankScore == nil || *out[0].RerankScore != 95 {
		t.Fatalf("expected rerank score 95, got %+v", out[0].RerankScore)
	}
}

func TestRerankerFallsBackToFusedScoreOnProviderError(t *testing.T) {
	pool := []ScoredCandidate{{Chunk: domain.Chunk{ChunkID: "c1"}, FusedScore: 0.7}}
	reranker := NewReranker(&fakeProvider{err: fmt.Errorf("provider unavailable")})

	out := reranker.Rerank(context.Background(), "query", pool)
	if out[0].RerankScore == nil {
		t.Fatal("expected a fallback rerank score to be set")
	}
	if *out[0].RerankScore != 70 {
		t.Fatalf("expected fallback score scaled to 0-100, got %v", *out[0].RerankScore)
	}
}

func TestParseRerankScoreClampsRange(t *testing.T) {
	v, err := parseRerankScore("150")
	if err != nil || v != 100 {
		t.Fatalf("expected clamp to 100, got %v err %v", v, err)
	}
	v, err = parseRerankScore("-5")
	if err != nil || v != 0 {
		t.Fatalf("expected clamp to 0, got %v err %v", v, err)
	}
	if _, err := parseRerankScore("not a number"); err == nil {
		t.Fatal("expected error for non-numeric response")
	}
}
