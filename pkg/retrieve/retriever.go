package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"finintel/internal/obslog"
	"finintel/pkg/domain"
)

// Filters narrows a retrieval query the way spec.md §4.3's retrieve
// contract describes: document, period, and metric are optional
// additional constraints layered on top of the mandatory tenant filter.
// Only DocumentID is applied, against a Chunk's own fields; Period and
// MetricID are accepted for contract parity and only contribute to the
// cache key. They are not passed to the lexical or dense index.
type Filters struct {
	DocumentID *string
	Period     *string
	MetricID   *string
}

func (f Filters) hash() string {
	parts := []string{"", "", ""}
	if f.DocumentID != nil {
		parts[0] = *f.DocumentID
	}
	if f.Period != nil {
		parts[1] = *f.Period
	}
	if f.MetricID != nil {
		parts[2] = *f.MetricID
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// ChunkStore resolves chunk ids to full Chunk bodies. The lexical and dense
// indexes only ever carry ids and scores — the store of record for chunk
// text and metadata lives wherever ingestion put it (in-memory in tests,
// SQLiteChunkStore's own database file in cmd/server and cmd/ingest).
type ChunkStore interface {
	GetChunks(ctx context.Context, chunkIDs []string) (map[string]domain.Chunk, error)
}

// Retriever implements spec.md §4.3's six-step query-time pipeline:
// filtered lexical + dense search, fusion, rerank, truncation — degrading
// gracefully, never failing, when a subcomponent is unavailable.
type Retriever struct {
	lexical  *LexicalIndex
	dense    *VectorStore
	chunks   ChunkStore
	reranker *Reranker
	cache    *QueryCache
	weights  FusionWeights
	poolSize int
	logger   *obslog.Logger
}

type RetrieverConfig struct {
	Lexical       *LexicalIndex
	Dense         *VectorStore
	Chunks        ChunkStore
	Reranker      *Reranker // nil disables rerank (step 5 is skipped per spec.md §4.3 degradation)
	Cache         *QueryCache
	FusionWeights FusionWeights
	PoolSize      int // top-N per strategy before fusion; spec.md default 20
	Logger        *obslog.Logger
}

func NewRetriever(cfg RetrieverConfig) *Retriever {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 20
	}
	if cfg.FusionWeights == (FusionWeights{}) {
		cfg.FusionWeights = DefaultFusionWeights()
	}
	return &Retriever{
		lexical:  cfg.Lexical,
		dense:    cfg.Dense,
		chunks:   cfg.Chunks,
		reranker: cfg.Reranker,
		cache:    cfg.Cache,
		weights:  cfg.FusionWeights,
		poolSize: cfg.PoolSize,
		logger:   cfg.Logger,
	}
}

// StrategyUsed records which retrieval strategies actually contributed to
// a result set, so a degraded query can report what it used (spec.md
// §4.3's "mark the returned results with the strategy actually used").
type StrategyUsed struct {
	Lexical bool
	Dense   bool
	Rerank  bool
}

// Result is the Retriever's full answer: the scored chunks plus a record
// of which strategies actually ran, for the orchestrator's processing_stats
// and warnings.
type Result struct {
	Chunks   []domain.ScoredChunk
	Strategy StrategyUsed
	Warnings []string
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(strings.Join(strings.Fields(q), " ")))
}

// Retrieve runs the query-time pipeline. Tenant filtering is applied at the
// index layer via tenantID, never as a post-filter. Retrieve applies no
// classification-level filter to chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, tenantID string, topK int, filters Filters) Result {
	normalized := normalizeQuery(query)
	cacheField := fmt.Sprintf("%s|%s|%d", normalized, filters.hash(), topK)

	compute := func() ([]ScoredCandidate, error) {
		return r.computePool(ctx, query, tenantID, topK, filters)
	}

	var candidates []ScoredCandidate
	var err error
	if r.cache != nil {
		candidates, err = r.cache.GetOrCompute(tenantID, cacheField, compute)
	} else {
		candidates, err = compute()
	}

	strategy := StrategyUsed{Lexical: r.lexical != nil, Dense: r.dense != nil, Rerank: r.reranker != nil}
	var warnings []string
	if !strategy.Lexical {
		warnings = append(warnings, "lexical_unavailable")
	}
	if !strategy.Dense {
		warnings = append(warnings, "dense_unavailable")
	}
	if !strategy.Rerank {
		warnings = append(warnings, "reranker_unavailable")
	}
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("retrieval degraded: %v", err))
	}

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	chunks := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		chunks = append(chunks, c.ToScoredChunk())
	}

	return Result{Chunks: chunks, Strategy: strategy, Warnings: warnings}
}

func (r *Retriever) computePool(ctx context.Context, query, tenantID string, topK int, filters Filters) ([]ScoredCandidate, error) {
	poolSize := r.poolSize
	if topK > poolSize {
		poolSize = topK
	}

	var lexicalResults []LexicalResult
	var denseResults []DenseResult
	var degradeErr error

	if r.lexical != nil {
		lexicalResults = r.lexical.Query(tenantID, query, poolSize)
	} else if r.logger != nil {
		r.logger.Warn("lexical index unavailable, degrading to dense-only retrieval")
	}

	if r.dense != nil {
		vector, err := embedQuery(ctx, query)
		if err != nil {
			degradeErr = fmt.Errorf("dense embedding failed: %w", err)
		} else {
			results, qErr := r.dense.Query(ctx, tenantID, vector, poolSize, 0)
			if qErr != nil {
				degradeErr = fmt.Errorf("dense index unavailable: %w", qErr)
			} else {
				denseResults = results
			}
		}
	}

	fused := Fuse(lexicalResults, denseResults, r.weights)
	if len(fused) > poolSize {
		fused = fused[:poolSize]
	}

	chunkIDs := make([]string, len(fused))
	for i, f := range fused {
		chunkIDs[i] = f.ChunkID
	}
	resolved, err := r.chunks.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}

	candidates := make([]ScoredCandidate, 0, len(fused))
	for _, f := range fused {
		chunk, ok := resolved[f.ChunkID]
		if !ok {
			continue
		}
		if filters.DocumentID != nil && chunk.DocumentID != *filters.DocumentID {
			continue
		}
		candidates = append(candidates, ScoredCandidate{
			Chunk:        chunk,
			FusedScore:   f.Score,
			LexicalScore: f.LexicalScore,
			DenseScore:   f.DenseScore,
		})
	}

	if r.reranker != nil && len(candidates) > 0 {
		candidates = r.reranker.Rerank(ctx, query, candidates)
	} else {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].FusedScore == candidates[j].FusedScore {
				return candidates[i].Chunk.ChunkID < candidates[j].Chunk.ChunkID
			}
			return candidates[i].FusedScore > candidates[j].FusedScore
		})
	}

	return candidates, degradeErr
}

// embedQuery is the seam where the orchestrator's configured embedding
// backend is called in a full deployment; the Retriever itself stays
// embedding-model-agnostic (spec.md: "dimension and model id are
// deployment parameters"). Tests override this var directly.
var embedQuery = func(ctx context.Context, query string) ([]float32, error) {
	return nil, fmt.Errorf("no embedding backend configured")
}
