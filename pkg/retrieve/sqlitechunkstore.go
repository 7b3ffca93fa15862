package retrieve

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"finintel/pkg/domain"
)

// SQLiteChunkStore is the durable ChunkStore a multi-process deployment
// needs: cmd/ingest and cmd/server run as separate processes, so chunk
// bodies produced by ingestion must survive past that process's exit
// rather than live only in a MemoryChunkStore. It follows
// factstore.SQLiteStore's shape (WAL mode, CREATE TABLE IF NOT EXISTS at
// open), with a chunks table and a documents table, so a deployment already running one embedded sqlite
// database can run two with the same operational characteristics.
type SQLiteChunkStore struct {
	db *sql.DB
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id             TEXT PRIMARY KEY,
	document_id          TEXT NOT NULL,
	tenant_id            TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	text                 TEXT NOT NULL,
	lexical_terms_json   TEXT NOT NULL,
	classification_level INTEGER NOT NULL,
	source_ref_json      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_tenant_document ON chunks(tenant_id, document_id);

CREATE TABLE IF NOT EXISTS documents (
	document_id          TEXT PRIMARY KEY,
	file_name             TEXT NOT NULL,
	file_hash             TEXT NOT NULL,
	tenant_id             TEXT NOT NULL,
	uploaded_by           TEXT NOT NULL,
	uploaded_at           DATETIME NOT NULL,
	page_count            INTEGER NOT NULL,
	classification_level  INTEGER NOT NULL,
	status                TEXT NOT NULL,
	error                 TEXT
);
`

func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("chunkstore: creating directory for %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("chunkstore: opening sqlite database: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), chunkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chunkstore: initializing schema: %w", err)
	}
	return &SQLiteChunkStore{db: db}, nil
}

func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces chunk, called once per chunk at ingest time.
func (s *SQLiteChunkStore) Put(ctx context.Context, chunk domain.Chunk) error {
	termsJSON, err := json.Marshal(chunk.LexicalTerms)
	if err != nil {
		return fmt.Errorf("chunkstore: marshal lexical terms: %w", err)
	}
	refJSON, err := json.Marshal(chunk.SourceRef)
	if err != nil {
		return fmt.Errorf("chunkstore: marshal source ref: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunks (chunk_id, document_id, tenant_id, kind, text, lexical_terms_json, classification_level, source_ref_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			tenant_id = excluded.tenant_id,
			kind = excluded.kind,
			text = excluded.text,
			lexical_terms_json = excluded.lexical_terms_json,
			classification_level = excluded.classification_level,
			source_ref_json = excluded.source_ref_json`,
		chunk.ChunkID, chunk.DocumentID, chunk.TenantID, string(chunk.Kind), chunk.Text,
		string(termsJSON), int(chunk.ClassificationLevel), string(refJSON),
	)
	if err != nil {
		return fmt.Errorf("chunkstore: upsert chunk: %w", err)
	}
	return nil
}

// DeleteDocument removes every chunk belonging to documentID, so a
// re-ingested document doesn't leave stale bodies behind.
func (s *SQLiteChunkStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("chunkstore: delete document %s: %w", documentID, err)
	}
	return nil
}

func (s *SQLiteChunkStore) GetChunks(ctx context.Context, chunkIDs []string) (map[string]domain.Chunk, error) {
	out := make(map[string]domain.Chunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_id, tenant_id, kind, text, lexical_terms_json, classification_level, source_ref_json
		FROM chunks WHERE chunk_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: query chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[c.ChunkID] = c
	}
	return out, rows.Err()
}

// All loads every chunk in the store, across tenants, so a server process
// can replay them into its in-process LexicalIndex at startup (the
// LexicalIndex itself has no persistence; it is rebuilt from this store
// each time the process starts).
func (s *SQLiteChunkStore) All(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, tenant_id, kind, text, lexical_terms_json, classification_level, source_ref_json
		FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: query all chunks: %w", err)
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteChunkStore) scanChunk(rows *sql.Rows) (domain.Chunk, error) {
	var c domain.Chunk
	var kind string
	var termsJSON, refJSON string
	var classification int
	if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.TenantID, &kind, &c.Text, &termsJSON, &classification, &refJSON); err != nil {
		return domain.Chunk{}, fmt.Errorf("chunkstore: scan chunk row: %w", err)
	}
	c.Kind = domain.ChunkKind(kind)
	c.ClassificationLevel = domain.ClassificationLevel(classification)
	if err := json.Unmarshal([]byte(termsJSON), &c.LexicalTerms); err != nil {
		return domain.Chunk{}, fmt.Errorf("chunkstore: unmarshal lexical terms: %w", err)
	}
	if err := json.Unmarshal([]byte(refJSON), &c.SourceRef); err != nil {
		return domain.Chunk{}, fmt.Errorf("chunkstore: unmarshal source ref: %w", err)
	}
	return c, nil
}

// UpsertDocument records a Document's current lifecycle state (spec.md §3:
// pending -> extracting -> indexing -> ready|failed). cmd/ingest calls this
// at each transition so a document's fate survives the ingest process exiting.
func (s *SQLiteChunkStore) UpsertDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, file_name, file_hash, tenant_id, uploaded_by, uploaded_at, page_count, classification_level, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			file_name = excluded.file_name,
			file_hash = excluded.file_hash,
			tenant_id = excluded.tenant_id,
			uploaded_by = excluded.uploaded_by,
			uploaded_at = excluded.uploaded_at,
			page_count = excluded.page_count,
			classification_level = excluded.classification_level,
			status = excluded.status,
			error = excluded.error`,
		doc.DocumentID, doc.FileName, doc.FileHash, doc.TenantID, doc.UploadedBy, doc.UploadedAt,
		doc.PageCount, int(doc.ClassificationLevel), string(doc.Status), doc.Error,
	)
	if err != nil {
		return fmt.Errorf("chunkstore: upsert document %s: %w", doc.DocumentID, err)
	}
	return nil
}

func (s *SQLiteChunkStore) GetDocument(ctx context.Context, documentID string) (domain.Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, file_name, file_hash, tenant_id, uploaded_by, uploaded_at, page_count, classification_level, status, error
		FROM documents WHERE document_id = ?`, documentID)
	var doc domain.Document
	var status string
	var classification int
	if err := row.Scan(&doc.DocumentID, &doc.FileName, &doc.FileHash, &doc.TenantID, &doc.UploadedBy, &doc.UploadedAt,
		&doc.PageCount, &classification, &status, &doc.Error); err != nil {
		if err == sql.ErrNoRows {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, fmt.Errorf("chunkstore: get document %s: %w", documentID, err)
	}
	doc.ClassificationLevel = domain.ClassificationLevel(classification)
	doc.Status = domain.DocumentStatus(status)
	return doc, true, nil
}

var _ ChunkStore = (*SQLiteChunkStore)(nil)
