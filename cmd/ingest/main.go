// Command ingest is finintel's document-ingestion entry point: it runs
// spec.md §4.1's route_and_extract, §4.2's normalize-and-map, and §4.4's
// upsert_fact/derive/guardrail-evaluate steps over a single file, then
// writes the resulting Facts and Chunks to durable storage so cmd/server's
// /api/answer can find them. Grounded on cmd/api/main.go's sequential
// component-construction shape, generalized from a single HTTP handler
// registration to a one-shot batch run the way the teacher's cmd/pipeline
// ran a company's valuation pipeline end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"finintel/internal/obslog"
	"finintel/pkg/config"
	"finintel/pkg/domain"
	"finintel/pkg/factstore"
	"finintel/pkg/normalize"
	"finintel/pkg/ontology"
	"finintel/pkg/retrieve"
)

func main() {
	logger := obslog.New("ingest")

	var (
		filePath        = flag.String("file", "", "path to the document to ingest (required)")
		configPath      = flag.String("config", "config/settings.yaml", "path to the deployment's YAML settings file")
		tenantID        = flag.String("tenant", "", "tenant id this document belongs to (required)")
		entityID        = flag.String("entity", "", "entity id (e.g. legal entity or business unit) the figures belong to (required)")
		uploadedBy      = flag.String("uploaded-by", "ingest-cli", "user id recorded as the uploader")
		documentID      = flag.String("document-id", "", "document id; defaults to a new random id")
		periodType      = flag.String("period-type", "FY", "period type: FY, Q, M, H, YTD, or custom")
		periodYear      = flag.Int("period-year", time.Now().Year(), "period year")
		periodIndex     = flag.Int("period-index", 0, "quarter/month/half index; 0 for FY/YTD")
		scenario        = flag.String("scenario", "actual", "actual, budget, or forecast")
		perimeter       = flag.String("perimeter", "statutory", "statutory, consolidated, or management")
		locale          = flag.String("locale", "", "it, us, or auto; defaults to the deployment's default_locale")
		classification  = flag.Int("classification", int(domain.ClassificationInternal), "0=public 1=internal 2=confidential 3=restricted")
		chunkStorePath  = flag.String("chunk-store", "data/chunks.db", "path to the durable chunk store sqlite file")
	)
	flag.Parse()

	if *filePath == "" || *tenantID == "" || *entityID == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -file <path> -tenant <id> -entity <id> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error(err, "failed to load configuration")
		os.Exit(1)
	}
	localeHint := normalize.Locale(*locale)
	if localeHint == "" {
		localeHint = normalize.Locale(cfg.DefaultLocale)
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
	derivation := factstore.NewDerivationEngine(ont)

	facts, closeFacts := mustOpenFactStore(cfg, logger)
	defer closeFacts()

	chunkStore, err := retrieve.NewSQLiteChunkStore(*chunkStorePath)
	if err != nil {
		logger.Error(err, "failed to open chunk store")
		os.Exit(1)
	}
	defer chunkStore.Close()

	docID := *documentID
	if docID == "" {
		docID = uuid.NewString()
	}
	log := logger.WithTenant(*tenantID).WithDocument(docID)

	fileBytes, err := os.ReadFile(*filePath)
	if err != nil {
		log.Error(err, "failed to read input file")
		os.Exit(1)
	}

	result, err := runIngest(ingestInput{
		tenantID:       *tenantID,
		entityID:       *entityID,
		documentID:     docID,
		uploadedBy:     *uploadedBy,
		fileBytes:      fileBytes,
		fileName:       filepath.Base(*filePath),
		periodKey:      domain.PeriodKey{Type: domain.PeriodType(*periodType), Year: *periodYear, Index: *periodIndex},
		scenario:       domain.Scenario(*scenario),
		perimeter:      domain.Perimeter(*perimeter),
		localeHint:     localeHint,
		classification: domain.ClassificationLevel(*classification),
		ontology:       ont,
		facts:          facts,
		derivation:     derivation,
		guardrails:     guardrails,
		chunkStore:     chunkStore,
		logger:         log,
	})
	if err != nil {
		log.Error(err, "ingestion failed")
		os.Exit(1)
	}

	log.Info(fmt.Sprintf("ingested %d facts and %d chunks from %s", result.factsWritten, result.chunksWritten, *filePath))
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
