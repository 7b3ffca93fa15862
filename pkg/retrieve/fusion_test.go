package retrieve

import "testing"

func TestFuseCombinesAndNormalizesScores(t *testing.T) {
	lexical := []LexicalResult{{ChunkID: "c1", Score: 4.0}, {ChunkID: "c2", Score: 2.0}}
	dense := []DenseResult{{ChunkID: "c2", Score: 0.9}, {ChunkID: "c3", Score: 0.5}}

	fused := Fuse(lexical, dense, DefaultFusionWeights())
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}

	byID := make(map[string]FusedResult, len(fused))
	for _, f := range fused {
		byID[f.ChunkID] = f
	}

	c2 := byID["c2"]
	if c2.LexicalScore == nil || c2.DenseScore == nil {
		t.Fatalf("expected c2 to carry both lexical and dense scores, got %+v", c2)
	}

	c1 := byID["c1"]
	if c1.DenseScore != nil {
		t.Fatalf("expected c1 to have no dense score, got %v", *c1.DenseScore)
	}

	for i := 1; i < len(fused); i++ {
		if fused[i-1].Score < fused[i].Score {
			t.Fatalf("expected descending order, got %+v", fused)
		}
	}
}

func TestFuseTieBreaksByChunkIDAscending(t *testing.T) {
	lexical := []LexicalResult{{ChunkID: "z", Score: 1.0}, {ChunkID: "a", Score: 1.0}}
	fused := Fuse(lexical, nil, DefaultFusionWeights())
	if fused[0].ChunkID != "a" || fused[1].ChunkID != "z" {
		t.Fatalf("expected tie-break by ascending chunk id, got %+v", fused)
	}
}

func TestFuseEmptyInputsReturnsEmpty(t *testing.T) {
	fused := Fuse(nil, nil, DefaultFusionWeights())
	if len(fused) != 0 {
		t.Fatalf("expected no fused candidates, got %+v", fused)
	}
}

func TestNormalizeHandlesFlatScores(t *testing.T) {
	if v := normalize(5, 5, 5); v != 1 {
		t.Fatalf("expected 1 for flat nonzero scores, got %v", v)
	}
	if v := normalize(0, 0, 0); v != 0 {
		t.Fatalf("expected 0 for flat zero scores, got %v", v)
	}
}
