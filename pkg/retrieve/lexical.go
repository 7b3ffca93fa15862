package retrieve

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"finintel/pkg/domain"
)

// LexicalIndex is a from-scratch BM25 postings-list index. No example repo
// in the retrieval pack imports a text-search library (Bleve, bm25, or
// similar never appear in any go.mod); BM25's scoring formula is a few
// lines of arithmetic over term frequencies the standard library already
// gives us (strings, regexp, sort), so there is no ecosystem gap here
// either — this is the stdlib-justified half of the hybrid retriever, with
// the dense half (VectorStore) carrying the real third-party dependency.
type LexicalIndex struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	docLength  map[string]int
	postings   map[string]map[string]int // term -> chunkID -> term frequency
	totalDocs  int
	totalTerms int64
	tenantDocs map[string]string // chunkID -> tenantID, for tenant-scoped queries
}

// NewLexicalIndex constructs an empty index with BM25's standard default
// tuning constants (k1=1.2, b=0.75).
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{
		k1:         1.2,
		b:          0.75,
		docLength:  make(map[string]int),
		postings:   make(map[string]map[string]int),
		tenantDocs: make(map[string]string),
	}
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(text string) []string {
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	return tokens
}

// Index adds (or replaces) a chunk's terms in the postings table.
func (idx *LexicalIndex) Index(tenantID string, chunk domain.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLength[chunk.ChunkID]; exists {
		idx.removeLocked(chunk.ChunkID)
	}

	tokens := tokenize(chunk.Text)
	idx.docLength[chunk.ChunkID] = len(tokens)
	idx.tenantDocs[chunk.ChunkID] = tenantID
	idx.totalDocs++
	idx.totalTerms += int64(len(tokens))

	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	for term, tf := range counts {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]int)
		}
		idx.postings[term][chunk.ChunkID] = tf
	}
}

func (idx *LexicalIndex) removeLocked(chunkID string) {
	length := idx.docLength[chunkID]
	idx.totalDocs--
	idx.totalTerms -= int64(length)
	delete(idx.docLength, chunkID)
	delete(idx.tenantDocs, chunkID)
	for term, docs := range idx.postings {
		delete(docs, chunkID)
		if len(docs) == 0 {
			delete(idx.postings, term)
		}
	}
}

// Remove deletes a chunk from the index, used when a document is
// re-ingested.
func (idx *LexicalIndex) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

// LexicalResult is one scored hit from a BM25 query.
type LexicalResult struct {
	ChunkID string
	Score   float64
}

// Query scores every chunk containing at least one query term using
// Okapi BM25, restricted to chunks belonging to tenantID, and returns the
// topK highest-scoring results sorted descending.
func (idx *LexicalIndex) Query(tenantID string, queryText string, topK int) []LexicalResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil
	}
	avgDocLen := float64(idx.totalTerms) / float64(idx.totalDocs)

	terms := tokenize(queryText)
	scores := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, term := range dedupeTerms(terms) {
		docs, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := bm25IDF(idx.totalDocs, len(docs))
		for chunkID, tf := range docs {
			if idx.tenantDocs[chunkID] != tenantID {
				continue
			}
			seen[chunkID] = struct{}{}
			docLen := float64(idx.docLength[chunkID])
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*docLen/avgDocLen)
			scores[chunkID] += idf * (float64(tf) * (idx.k1 + 1)) / denom
		}
	}

	results := make([]LexicalResult, 0, len(seen))
	for chunkID := range seen {
		results = append(results, LexicalResult{ChunkID: chunkID, Score: scores[chunkID]})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ChunkID < results[j].ChunkID // deterministic tie-break
		}
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func bm25IDF(totalDocs, docsWithTerm int) float64 {
	// Classic BM25 IDF with the +1 floor so the score never goes negative
	// for very common terms.
	return math.Log(1 + (float64(totalDocs)-float64(docsWithTerm)+0.5)/(float64(docsWithTerm)+0.5))
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
