// Package ingest routes raw file bytes to the right extractor and produces
// extraction blocks plus raw candidate metrics with full provenance.
// Normalizing numbers and mapping labels to canonical metrics is
// deliberately out of scope here (spec.md §4.1) — that is pkg/normalize
// and pkg/ontology's job.
package ingest

import "finintel/pkg/domain"

// BlockKind distinguishes narrative text from tabular content.
type BlockKind string

const (
	BlockNarrative BlockKind = "narrative"
	BlockTable     BlockKind = "table"
)

// Cell is one rectangular-grid position of a table block.
type Cell struct {
	Row, Col  int
	Value     string
	SourceRef domain.SourceReference
}

// Block is one unit of extracted content: either narrative text or a
// rectangular table grid, always carrying its own provenance.
type Block struct {
	Kind      BlockKind
	Text      string // populated for BlockNarrative
	Cells     []Cell // populated for BlockTable; sparse-safe, addressed by (Row, Col)
	Rows      int
	Cols      int
	SourceRef domain.SourceReference
}

// CandidateMetric is a raw, unnormalized (label, value) pair pulled from a
// table row or narrative label-near-number pattern.
type CandidateMetric struct {
	Label     string
	RawValue  string
	SourceRef domain.SourceReference
}

// IngestResult is route_and_extract's return value (spec.md §4.1).
type IngestResult struct {
	DocumentID string
	Blocks     []Block
	Candidates []CandidateMetric
}

// RouteClass is the coarse classification the Router assigns before
// dispatching to a concrete Extractor.
type RouteClass string

const (
	RouteStructured         RouteClass = "structured"
	RouteUnstructuredNative RouteClass = "unstructured-native"
	RouteUnstructuredScanned RouteClass = "unstructured-scanned"
	RouteHybrid             RouteClass = "hybrid"
)

// Extractor is the discriminated-variant interface spec.md §9 calls for in
// place of dynamic duck-typed dispatch: one implementation per source type,
// selected by the Router's dispatch table.
type Extractor interface {
	Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error)
}
