package retrieve

import (
	"testing"

	"finintel/pkg/domain"
)

func TestLexicalIndexQueryRanksByBM25AndTenant(t *testing.T) {
	idx := NewLexicalIndex()
	idx.Index("tenant-a", domain.Chunk{ChunkID: "c1", Text: "Ricavi netti 2023 in crescita del 5 percento"})
	idx.Index("tenant-a", domain.Chunk{ChunkID: "c2", Text: "Il margine operativo lordo e stabile"})
	idx.Index("tenant-b", domain.Chunk{ChunkID: "c3", Text: "Ricavi netti in forte crescita nel trimestre"})

	results := idx.Query("tenant-a", "ricavi crescita", 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 tenant-scoped hit, got %d: %+v", len(results), results)
	}
	if results[0].ChunkID != "c1" {
		t.Fatalf("expected c1 to match, got %s", results[0].ChunkID)
	}
}

func TestLexicalIndexQueryDeterministicTieBreak(t *testing.T) {
	idx := NewLexicalIndex()
	idx.Index("t", domain.Chunk{ChunkID: "z", Text: "ricavi ricavi"})
	idx.Index("t", domain.Chunk{ChunkID: "a", Text: "ricavi ricavi"})

	results := idx.Query("t", "ricavi", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Fatalf("expected identical scores for identical docs, got %v vs %v", results[0].Score, results[1].Score)
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "z" {
		t.Fatalf("expected ascending chunk id tie-break, got %s then %s", results[0].ChunkID, results[1].ChunkID)
	}
}

func TestLexicalIndexRemove(t *testing.T) {
	idx := NewLexicalIndex()
	idx.Index("t", domain.Chunk{ChunkID: "c1", Text: "pfn debito lordo cassa"})
	idx.Remove("c1")

	results := idx.Query("t", "pfn", 10)
	if len(results) != 0 {
		t.Fatalf("expected no results after removal, got %+v", results)
	}
}

func TestLexicalIndexQueryEmptyIndex(t *testing.T) {
	idx := NewLexicalIndex()
	if results := idx.Query("t", "anything", 10); results != nil {
		t.Fatalf("expected nil results on empty index, got %+v", results)
	}
}
