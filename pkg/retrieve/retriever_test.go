package retrieve

import (
	"context"
	"fmt"
	"testing"

	"finintel/pkg/domain"
)

type fakeChunkStore struct {
	chunks map[string]domain.Chunk
}

func (f *fakeChunkStore) GetChunks(ctx context.Context, chunkIDs []string) (map[string]domain.Chunk, error) {
	out := make(map[string]domain.Chunk, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func seedChunks() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string]domain.Chunk{
		"c1": {ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti in crescita"},
		"c2": {ChunkID: "c2", DocumentID: "doc-2", Text: "margine operativo lordo stabile"},
	}}
}

func TestRetrieverLexicalOnlyWhenDenseUnavailable(t *testing.T) {
	lexical := NewLexicalIndex()
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti in crescita"})

	r := NewRetriever(RetrieverConfig{Lexical: lexical, Chunks: seedChunks()})
	result := r.Retrieve(context.Background(), "ricavi", "tenant-a", 5, Filters{})

	if result.Strategy.Dense || !result.Strategy.Lexical {
		t.Fatalf("expected lexical-only strategy marker, got %+v", result.Strategy)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].Chunk.ChunkID != "c1" {
		t.Fatalf("expected c1 from lexical-only retrieval, got %+v", result.Chunks)
	}
}

func TestRetrieverNeverFailsWithNoIndexConfigured(t *testing.T) {
	r := &Retriever{chunks: seedChunks(), poolSize: 20}
	result := r.Retrieve(context.Background(), "margine", "tenant-a", 5, Filters{})

	if result.Strategy.Lexical || result.Strategy.Dense {
		t.Fatalf("expected neither strategy marked when both indexes are nil, got %+v", result.Strategy)
	}
	if len(result.Chunks) != 0 {
		t.Fatalf("expected no chunks when no index is configured, got %+v", result.Chunks)
	}
}

func TestRetrieverNeverFailsWhenDenseQueryErrors(t *testing.T) {
	origEmbed := embedQuery
	defer func() { embedQuery = origEmbed }()
	embedQuery = func(ctx context.Context, query string) ([]float32, error) {
		return nil, fmt.Errorf("embedding backend unavailable")
	}

	lexical := NewLexicalIndex()
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti in crescita"})

	r := NewRetriever(RetrieverConfig{Lexical: lexical, Dense: &VectorStore{}, Chunks: seedChunks()})
	result := r.Retrieve(context.Background(), "ricavi", "tenant-a", 5, Filters{})

	if len(result.Warnings) == 0 {
		t.Fatal("expected a degradation warning when embedding fails")
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected the query to still return lexical results, got %+v", result.Chunks)
	}
}

func TestRetrieverAppliesDocumentIDFilter(t *testing.T) {
	lexical := NewLexicalIndex()
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti ricavi"})
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c2", DocumentID: "doc-2", Text: "ricavi netti ricavi"})

	r := NewRetriever(RetrieverConfig{Lexical: lexical, Chunks: seedChunks()})
	docID := "doc-2"
	result := r.Retrieve(context.Background(), "ricavi", "tenant-a", 5, Filters{DocumentID: &docID})

	if len(result.Chunks) != 1 || result.Chunks[0].Chunk.DocumentID != "doc-2" {
		t.Fatalf("expected only doc-2's chunk to survive the filter, got %+v", result.Chunks)
	}
}

func TestRetrieverWarnsWhenRerankerUnavailable(t *testing.T) {
	lexical := NewLexicalIndex()
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti in crescita"})

	r := NewRetriever(RetrieverConfig{Lexical: lexical, Chunks: seedChunks()})
	result := r.Retrieve(context.Background(), "ricavi", "tenant-a", 5, Filters{})

	if !containsWarning(result.Warnings, "reranker_unavailable") {
		t.Fatalf("expected reranker_unavailable warning, got %+v", result.Warnings)
	}
	if !containsWarning(result.Warnings, "dense_unavailable") {
		t.Fatalf("expected dense_unavailable warning, got %+v", result.Warnings)
	}
	if containsWarning(result.Warnings, "lexical_unavailable") {
		t.Fatalf("did not expect lexical_unavailable warning when lexical is configured, got %+v", result.Warnings)
	}
}

func containsWarning(warnings []string, want string) bool {
	for _, w := range warnings {
		if w == want {
			return true
		}
	}
	return false
}

func TestRetrieverRerankReordersResults(t *testing.T) {
	lexical := NewLexicalIndex()
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "ricavi netti in crescita"})
	lexical.Index("tenant-a", domain.Chunk{ChunkID: "c2", DocumentID: "doc-2", Text: "margine ricavi operativo"})

	provider := &fakeProvider{responses: map[string]string{
		"Question: ricavi\n\nPassage:\nricavi netti in crescita": "20",
		"Question: ricavi\n\nPassage:\nmargine ricavi operativo": "99",
	}}
	r := NewRetriever(RetrieverConfig{Lexical: lexical, Chunks: seedChunks(), Reranker: NewReranker(provider)})
	result := r.Retrieve(context.Background(), "ricavi", "tenant-a", 5, Filters{})

	if !result.Strategy.Rerank {
		t.Fatal("expected rerank strategy marker to be set")
	}
	if len(result.Chunks) != 2 || result.Chunks[0].Chunk.ChunkID != "c2" {
		t.Fatalf("expected c2 first after rerank, got %+v", result.Chunks)
	}
}
