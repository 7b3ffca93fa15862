// Package retrieve implements the hybrid lexical+dense retrieval pipeline:
// score fusion, LLM-assisted rerank, and a TTL query cache sit in front of
// two independent indexes (pkg/retrieve's BM25 lexical index and a
// qdrant-backed dense vector store).
package retrieve

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"finintel/pkg/domain"
)

// VectorStoreConfig mirrors the Qdrant-backed store's configuration shape
// from Tangerg-lynx/ai/providers/vectorstores/qdrant/store.go, trimmed to
// what this system needs: no document batcher or embedding-model
// abstraction (embeddings are produced upstream, by the orchestrator's
// chosen llm.Provider, and handed to Upsert/Query already computed).
type VectorStoreConfig struct {
	Client           *qdrant.Client
	CollectionPrefix string // collections are tenant-scoped: "<prefix>_<tenant_id>"
	VectorSize       uint64
	InitializeSchema bool
}

// VectorStore is the dense half of the hybrid retriever. Every operation
// is scoped to a tenant's own collection — spec.md §6's row-level isolation
// requirement is enforced at the collection-naming boundary here, one
// layer below pkg/access's row-level filtering on facts and chunks.
type VectorStore struct {
	client           *qdrant.Client
	collectionPrefix string
	vectorSize       uint64
	initializeSchema bool
}

func NewVectorStore(cfg VectorStoreConfig) (*VectorStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("retrieve: qdrant client is required")
	}
	if cfg.CollectionPrefix == "" {
		return nil, fmt.Errorf("retrieve: collection prefix is required")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("retrieve: vector size is required")
	}
	return &VectorStore{
		client:           cfg.Client,
		collectionPrefix: cfg.CollectionPrefix,
		vectorSize:       cfg.VectorSize,
		initializeSchema: cfg.InitializeSchema,
	}, nil
}

func (v *VectorStore) collectionName(tenantID string) string {
	return fmt.Sprintf("%s_%s", v.collectionPrefix, tenantID)
}

// EnsureCollection creates the tenant's collection if InitializeSchema is
// set and it doesn't already exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, tenantID string) error {
	if !v.initializeSchema {
		return nil
	}
	name := v.collectionName(tenantID)
	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     v.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert indexes a chunk's precomputed embedding, carrying enough payload
// (document id, classification level, chunk kind) for a post-query filter
// pass to apply access control without a second round trip.
func (v *VectorStore) Upsert(ctx context.Context, tenantID string, chunk domain.Chunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("retrieve: chunk %s has no embedding to index", chunk.ChunkID)
	}
	payload, err := qdrant.TryValueMap(map[string]any{
		"document_id":          chunk.DocumentID,
		"kind":                 string(chunk.Kind),
		"classification_level": int64(chunk.ClassificationLevel),
		"source_ref":           chunk.SourceRef.String(),
	})
	if err != nil {
		return fmt.Errorf("build qdrant payload for chunk %s: %w", chunk.ChunkID, err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(chunk.ChunkID),
		Vectors: qdrant.NewVectors(chunk.Embedding...),
		Payload: payload,
	}

	_, err = v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: v.collectionName(tenantID),
		Points:         []*qdrant.PointStruct{point},
		Wait:           boolPtr(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed for chunk %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// DenseResult is one hit from a vector query, carrying the chunk id and
// raw cosine score; the retriever resolves full Chunk bodies separately
// (qdrant here is an index, not the chunk system of record).
type DenseResult struct {
	ChunkID string
	Score   float64
}

// Query embeds the caller's query vector against the tenant's collection.
// minScore and topK follow spec.md §4.2's pool-then-fuse design: callers
// request a generous pool (e.g. top 20) before fusion trims to the final
// answer set.
func (v *VectorStore) Query(ctx context.Context, tenantID string, queryVector []float32, topK int, minScore float64) ([]DenseResult, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: v.collectionName(tenantID),
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          uint64Ptr(uint64(topK)),
		ScoreThreshold: float32Ptr(float32(minScore)),
		WithPayload:    qdrant.NewWithPayload(false),
	}

	scoredPoints, err := v.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	results := make([]DenseResult, 0, len(scoredPoints))
	for _, p := range scoredPoints {
		id := p.GetId()
		if id == nil {
			continue
		}
		results = append(results, DenseResult{ChunkID: id.GetUuid(), Score: float64(p.GetScore())})
	}
	return results, nil
}

// Delete removes every point belonging to a document, used when a document
// is re-ingested and its old chunks must be superseded.
func (v *VectorStore) Delete(ctx context.Context, tenantID, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword("document_id", documentID),
		},
	}
	_, err := v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: v.collectionName(tenantID),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed for document %s: %w", documentID, err)
	}
	return nil
}

func (v *VectorStore) Close() error {
	return v.client.Close()
}

func boolPtr(b bool) *bool          { return &b }
func uint64Ptr(u uint64) *uint64    { return &u }
func float32Ptr(f float32) *float32 { return &f }
