package retrieve

import (
	"context"
	"sync"

	"finintel/pkg/domain"
)

// MemoryChunkStore is a concurrency-safe, in-process ChunkStore: the
// boundary where the ingestion pipeline hands chunk bodies to the
// retriever once they've been produced and indexed (lexically and/or
// densely). Chunk bodies that must survive a process restart go to
// SQLiteChunkStore instead, which cmd/server and cmd/ingest use; this
// implementation serves tests and in-process use.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[string]domain.Chunk)}
}

// Put registers or replaces a chunk, called once per chunk at ingest time.
func (s *MemoryChunkStore) Put(chunk domain.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.ChunkID] = chunk
}

// DeleteDocument removes every chunk belonging to documentID, mirroring
// VectorStore.DeleteDocument so a re-ingested document doesn't leave stale
// bodies behind.
func (s *MemoryChunkStore) DeleteDocument(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
}

func (s *MemoryChunkStore) GetChunks(_ context.Context, chunkIDs []string) (map[string]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Chunk, len(chunkIDs))
	for _, id := range chunkIDs {
		if c, ok := s.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

var _ ChunkStore = (*MemoryChunkStore)(nil)
