package domain

import "time"

// ChunkKind distinguishes the three retrieval-unit shapes spec.md §3 names.
type ChunkKind string

const (
	ChunkNarrative ChunkKind = "narrative"
	ChunkTable     ChunkKind = "table"
	ChunkCaption   ChunkKind = "caption"
)

// Chunk is a retrieval-sized piece of a document, created once at ingest
// and never mutated — re-indexing produces new chunks with new ids.
type Chunk struct {
	ChunkID             string
	DocumentID          string
	SourceRef           SourceReference
	Kind                ChunkKind
	Text                string
	Embedding           []float32
	LexicalTerms        []string
	TenantID            string
	ClassificationLevel ClassificationLevel
}

// ScoredChunk wraps a Chunk with the retriever's final fused/reranked score
// and a record of which retrieval strategies actually contributed, so a
// degraded query (spec.md §4.3) can still report what it used.
type ScoredChunk struct {
	Chunk        Chunk
	Score        float64
	LexicalScore *float64
	DenseScore   *float64
	RerankScore  *float64
}

// Document is the ingest record a set of Chunks and Facts belong to.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentExtracting DocumentStatus = "extracting"
	DocumentIndexing   DocumentStatus = "indexing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

type Document struct {
	DocumentID          string
	FileName            string
	FileHash            string
	TenantID            string
	UploadedBy          string
	UploadedAt          time.Time
	PageCount           int
	ClassificationLevel ClassificationLevel
	Status              DocumentStatus
	Error               *string
}
