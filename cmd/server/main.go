// Command server is finintel's HTTP entry point: it wires every
// collaborator package into a running process and exposes the Query
// Orchestrator's answer() contract over HTTP. Grounded on the teacher's
// cmd/api/main.go — godotenv + YAML config load, then a sequence of
// component constructors feeding a net/http.HandleFunc registration — with
// the teacher's agent.Manager/debate/edgar/valuation handlers replaced by
// this system's own collaborators.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"finintel/internal/obslog"
	"finintel/pkg/access"
	"finintel/pkg/config"
	"finintel/pkg/domain"
	"finintel/pkg/factstore"
	"finintel/pkg/llm"
	"finintel/pkg/ontology"
	"finintel/pkg/orchestrator"
	"finintel/pkg/retrieve"
)

func main() {
	logger := obslog.New("server")

	cfg, err := config.Load("config/settings.yaml")
	if err != nil {
		logger.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	ont, err := ontology.Load(cfg.OntologyPath)
	if err != nil {
		logger.Error(err, "failed to load ontology")
		os.Exit(1)
	}

	guardrails, err := factstore.LoadGuardrails(cfg.GuardrailPath)
	if err != nil {
		logger.Error(err, "failed to load guardrails")
		os.Exit(1)
	}

	facts, closeFacts := mustOpenFactStore(cfg, logger)
	defer closeFacts()

	sessions, closeSessions := mustOpenSessionStore(cfg, facts, logger)
	defer closeSessions()
	_ = sessions // wired into an auth middleware by the deployment-specific front door; kept here so its lifecycle is owned by main.

	providers := map[string]llm.Provider{
		"gemini": &llm.GeminiProvider{},
		"openai": &llm.OpenAIProvider{},
	}
	if claude, err := llm.NewClaudeProvider("", 0); err == nil {
		providers["claude"] = claude
	} else {
		logger.Warn("claude provider unavailable, proceeding without it")
	}
	manager := llm.NewManager(cfg.LLM.ActiveProvider, providers)

	lexical := retrieve.NewLexicalIndex()
	chunks, closeChunks := mustOpenChunkStore(cfg, logger)
	defer closeChunks()
	replayChunksIntoLexicalIndex(lexical, chunks, logger)
	cache := retrieve.NewQueryCache(time.Duration(cfg.QueryCacheTTLSeconds) * time.Second)
	reranker := retrieve.NewReranker(manager.ForStage("rerank"))

	retriever := retrieve.NewRetriever(retrieve.RetrieverConfig{
		Lexical:  lexical,
		Chunks:   chunks,
		Reranker: reranker,
		Cache:    cache,
		FusionWeights: retrieve.FusionWeights{
			Lexical: cfg.Retrieval.LexicalWeight,
			Dense:   cfg.Retrieval.DenseWeight,
		},
		PoolSize: cfg.Retrieval.FusionTopN,
		Logger:   logger.WithStage("retrieve"),
	})

	classifier := orchestrator.NewClassifier(ont, domain.DefaultFiscalCalendar(), manager.ForStage("classify"), logger.WithStage("classify"))
	derivation := factstore.NewDerivationEngine(ont)

	orch := orchestrator.New(orchestrator.Config{
		Classifier: classifier,
		Retriever:  retriever,
		Facts:      facts,
		Derivation: derivation,
		Guardrails: guardrails,
		Ontology:   ont,
		LLM:        manager,
		Logger:     logger.WithStage("orchestrator"),
		TopK:       10,
	})

	http.HandleFunc("/api/answer", handleAnswer(orch, logger))
	http.HandleFunc("/api/documents/", handleDocumentStatus(chunks, logger))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("listening on " + addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error(err, "server exited")
		os.Exit(1)
	}
}

// answerRequest is the wire shape of a POST /api/answer body.
type answerRequest struct {
	Question string  `json:"question"`
	TenantID string  `json:"tenant_id"`
	UserID   string  `json:"user_id"`
	Role     string  `json:"role"`
	EntityID *string `json:"entity_id"`
}

func handleAnswer(orch *orchestrator.Orchestrator, logger *obslog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		userCtx := domain.UserContext{
			UserID:            req.UserID,
			TenantID:          req.TenantID,
			Role:              domain.Role(req.Role),
			MaxClassification: domain.ClassificationInternal,
			SessionExpiresAt:  time.Now().Add(time.Hour),
		}

		answer, err := orch.Answer(r.Context(), req.Question, userCtx, domain.AnswerOptions{EntityID: req.EntityID, Deadline: time.Now().Add(30 * time.Second)})
		if err != nil {
			logger.WithTenant(req.TenantID).Warn("answer call did not complete: " + err.Error())
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(answer)
	}
}

// documentStatusResponse is the wire shape of GET /api/documents/{id}
// (spec.md §6: document_status(document_id) -> {status, error?}).
type documentStatusResponse struct {
	DocumentID string  `json:"document_id"`
	Status     string  `json:"status"`
	PageCount  int     `json:"page_count"`
	Error      *string `json:"error,omitempty"`
}

func handleDocumentStatus(chunks *retrieve.SQLiteChunkStore, logger *obslog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		documentID := strings.TrimPrefix(r.URL.Path, "/api/documents/")
		if documentID == "" {
			http.Error(w, "document id required", http.StatusBadRequest)
			return
		}
		doc, ok, err := chunks.GetDocument(r.Context(), documentID)
		if err != nil {
			logger.Error(err, "failed to look up document status")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(documentStatusResponse{
			DocumentID: doc.DocumentID,
			Status:     string(doc.Status),
			PageCount:  doc.PageCount,
			Error:      doc.Error,
		})
	}
}

// mustOpenChunkStore opens the durable chunk store cmd/ingest writes to,
// so chunks produced by an ingestion run survive past that process's exit
// and are visible to this one.
func mustOpenChunkStore(cfg config.Config, logger *obslog.Logger) (*retrieve.SQLiteChunkStore, func()) {
	store, err := retrieve.NewSQLiteChunkStore(cfg.ChunkStorePath)
	if err != nil {
		logger.Error(err, "failed to open chunk store")
		os.Exit(1)
	}
	return store, func() { store.Close() }
}

// replayChunksIntoLexicalIndex rebuilds the in-process BM25 index from the
// durable chunk store at startup, since LexicalIndex itself holds no state
// across restarts.
func replayChunksIntoLexicalIndex(lexical *retrieve.LexicalIndex, chunks *retrieve.SQLiteChunkStore, logger *obslog.Logger) {
	all, err := chunks.All(context.Background())
	if err != nil {
		logger.Error(err, "failed to replay chunks into lexical index")
		return
	}
	for _, c := range all {
		lexical.Index(c.TenantID, c)
	}
	logger.Info(fmt.Sprintf("replayed %d chunks into the lexical index", len(all)))
}

func mustOpenFactStore(cfg config.Config, logger *obslog.Logger) (factstore.FactStore, func()) {
	if cfg.FactStoreBackend == "postgres" {
		store, err := factstore.NewPostgresStore(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error(err, "failed to open postgres fact store")
			os.Exit(1)
		}
		return store, func() { store.Close() }
	}
	store, err := factstore.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		logger.Error(err, "failed to open sqlite fact store")
		os.Exit(1)
	}
	return store, func() { store.Close() }
}

// mustOpenSessionStore opens the embedded session table spec.md §6
// describes. On the sqlite backend it shares the fact store's own
// connection, so one process touches one database file; on postgres
// (whose pgxpool.Pool has no database/sql analog) it opens a dedicated
// sqlite file just for sessions.
func mustOpenSessionStore(cfg config.Config, facts factstore.FactStore, logger *obslog.Logger) (*access.SessionStore, func()) {
	if sqliteFacts, ok := facts.(*factstore.SQLiteStore); ok {
		store, err := access.NewSessionStore(sqliteFacts.DB())
		if err != nil {
			logger.Error(err, "failed to initialize session store")
			os.Exit(1)
		}
		return store, func() {}
	}

	db, err := sql.Open("sqlite", "data/sessions.db?_pragma=journal_mode(WAL)")
	if err != nil {
		logger.Error(err, "failed to open session database")
		os.Exit(1)
	}
	store, err := access.NewSessionStore(db)
	if err != nil {
		logger.Error(err, "failed to initialize session store")
		os.Exit(1)
	}
	return store, func() { db.Close() }
}
