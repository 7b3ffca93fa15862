package retrieve

import (
	"context"
	"testing"

	"finintel/pkg/domain"
)

func TestSQLiteChunkStorePutAndGet(t *testing.T) {
	store, err := NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	chunk := domain.Chunk{
		ChunkID:             "c1",
		DocumentID:          "doc-1",
		TenantID:            "acme",
		Kind:                domain.ChunkNarrative,
		Text:                "ricavi netti in crescita del 10%",
		LexicalTerms:        []string{"ricavi", "netti"},
		ClassificationLevel: domain.ClassificationInternal,
		SourceRef:           domain.SourceReference{FileName: "report.pdf"},
	}
	if err := store.Put(ctx, chunk); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.GetChunks(ctx, []string{"c1", "missing"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	roundTripped := got["c1"]
	if roundTripped.Text != chunk.Text || roundTripped.TenantID != "acme" {
		t.Fatalf("round-tripped chunk mismatch: %+v", roundTripped)
	}
	if len(roundTripped.LexicalTerms) != 2 {
		t.Fatalf("expected lexical terms to round-trip, got %+v", roundTripped.LexicalTerms)
	}
}

func TestSQLiteChunkStorePutUpsertsOnConflict(t *testing.T) {
	store, err := NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "first version"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "second version"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.GetChunks(ctx, []string{"c1"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if got["c1"].Text != "second version" {
		t.Fatalf("expected re-ingest to replace the chunk, got %+v", got["c1"])
	}
}

func TestSQLiteChunkStoreDeleteDocumentRemovesOnlyItsChunks(t *testing.T) {
	store, err := NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", Text: "a"})
	store.Put(ctx, domain.Chunk{ChunkID: "c2", DocumentID: "doc-2", Text: "b"})

	if err := store.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	got, err := store.GetChunks(ctx, []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if _, ok := got["c1"]; ok {
		t.Fatalf("expected doc-1's chunk to be deleted")
	}
	if _, ok := got["c2"]; !ok {
		t.Fatalf("expected doc-2's chunk to survive")
	}
}

func TestSQLiteChunkStoreDocumentLifecycle(t *testing.T) {
	store, err := NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	doc := domain.Document{
		DocumentID:          "doc-1",
		FileName:            "bilancio.pdf",
		FileHash:            "abc123",
		TenantID:            "acme",
		UploadedBy:          "alice",
		ClassificationLevel: domain.ClassificationInternal,
		Status:              domain.DocumentExtracting,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	got, ok, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !ok {
		t.Fatalf("expected document to be found")
	}
	if got.Status != domain.DocumentExtracting {
		t.Fatalf("expected status extracting, got %v", got.Status)
	}

	doc.Status = domain.DocumentReady
	doc.PageCount = 3
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument (transition): %v", err)
	}
	got, ok, err = store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !ok || got.Status != domain.DocumentReady || got.PageCount != 3 {
		t.Fatalf("expected transition to ready with page_count=3, got %+v (ok=%v)", got, ok)
	}

	if _, ok, err := store.GetDocument(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected no document for unknown id, got ok=%v err=%v", ok, err)
	}
}

func TestSQLiteChunkStoreAllReturnsEveryTenant(t *testing.T) {
	store, err := NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, domain.Chunk{ChunkID: "c1", DocumentID: "doc-1", TenantID: "acme", Text: "a"})
	store.Put(ctx, domain.Chunk{ChunkID: "c2", DocumentID: "doc-2", TenantID: "globex", Text: "b"})

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 chunks across tenants, got %d", len(all))
	}
}
