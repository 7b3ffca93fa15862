package main

import (
	"context"
	"testing"

	"finintel/internal/obslog"
	"finintel/pkg/domain"
	"finintel/pkg/factstore"
	"finintel/pkg/normalize"
	"finintel/pkg/ontology"
	"finintel/pkg/retrieve"
)

const runTestOntologyYAML = `
metrics:
  - id: ricavi
    display_name: Ricavi
    domain: finance-pl
    unit_kind: currency
    synonyms: ["Ricavi", "Ricavi netti"]
  - id: cogs
    display_name: Costo del venduto
    domain: finance-pl
    unit_kind: currency
    synonyms: ["Costo del venduto"]
  - id: margine_lordo
    display_name: Margine lordo
    domain: finance-pl
    unit_kind: currency
    synonyms: ["Margine lordo"]
    derivable_from:
      inputs: [ricavi, cogs]
      formula: "ricavi - cogs"
`

func TestRunIngestExtractsAndPersistsFactsFromCSV(t *testing.T) {
	ont, err := ontology.LoadFromBytes([]byte(runTestOntologyYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	guardrails, err := factstore.LoadGuardrailsFromBytes([]byte(`rules: []`))
	if err != nil {
		t.Fatalf("LoadGuardrailsFromBytes: %v", err)
	}
	facts, err := factstore.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer facts.Close()
	chunkStore, err := retrieve.NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer chunkStore.Close()

	csv := "Voce,Valore\nRicavi,1000\nCosto del venduto,400\n"

	out, err := runIngest(ingestInput{
		tenantID:       "acme",
		entityID:       "acme-holding",
		documentID:     "doc-1",
		fileBytes:      []byte(csv),
		fileName:       "bilancio.csv",
		periodKey:      domain.PeriodKey{Type: domain.PeriodFY, Year: 2024},
		scenario:       domain.ScenarioActual,
		perimeter:      domain.PerimeterStatutory,
		localeHint:     normalize.LocaleIT,
		classification: domain.ClassificationInternal,
		ontology:       ont,
		facts:          facts,
		derivation:     factstore.NewDerivationEngine(ont),
		guardrails:     guardrails,
		chunkStore:     chunkStore,
		logger:         obslog.New("test"),
	})
	if err != nil {
		t.Fatalf("runIngest: %v", err)
	}
	if out.factsWritten < 2 {
		t.Fatalf("expected at least the 2 raw facts to be written, got %d", out.factsWritten)
	}

	rows, err := facts.QueryFacts(context.Background(), factstore.Predicate{TenantID: "acme"})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	byMetric := make(map[string]domain.Fact, len(rows))
	for _, f := range rows {
		byMetric[f.MetricID] = f
	}

	if byMetric["ricavi"].Value != 1000 {
		t.Fatalf("expected ricavi=1000, got %+v", byMetric["ricavi"])
	}
	if byMetric["cogs"].Value != 400 {
		t.Fatalf("expected cogs=400, got %+v", byMetric["cogs"])
	}
	margine, ok := byMetric["margine_lordo"]
	if !ok {
		t.Fatalf("expected derived margine_lordo to be computed and persisted, got %+v", byMetric)
	}
	if margine.Value != 600 {
		t.Fatalf("expected margine_lordo=600, got %v", margine.Value)
	}

	doc, found, err := chunkStore.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !found {
		t.Fatalf("expected document record to be persisted")
	}
	if doc.Status != domain.DocumentReady {
		t.Fatalf("expected document status ready, got %v (error=%v)", doc.Status, doc.Error)
	}
}

func TestRunIngestSkipsUnmappableLabelsWithoutFailingTheDocument(t *testing.T) {
	ont, err := ontology.LoadFromBytes([]byte(runTestOntologyYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	guardrails, err := factstore.LoadGuardrailsFromBytes([]byte(`rules: []`))
	if err != nil {
		t.Fatalf("LoadGuardrailsFromBytes: %v", err)
	}
	facts, err := factstore.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer facts.Close()
	chunkStore, err := retrieve.NewSQLiteChunkStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteChunkStore: %v", err)
	}
	defer chunkStore.Close()

	csv := "Voce,Valore\nRicavi,1000\nQualcosa di sconosciuto,999\n"

	out, err := runIngest(ingestInput{
		tenantID:       "acme",
		entityID:       "acme-holding",
		documentID:     "doc-2",
		fileBytes:      []byte(csv),
		fileName:       "bilancio.csv",
		periodKey:      domain.PeriodKey{Type: domain.PeriodFY, Year: 2024},
		scenario:       domain.ScenarioActual,
		perimeter:      domain.PerimeterStatutory,
		localeHint:     normalize.LocaleIT,
		classification: domain.ClassificationInternal,
		ontology:       ont,
		facts:          facts,
		derivation:     factstore.NewDerivationEngine(ont),
		guardrails:     guardrails,
		chunkStore:     chunkStore,
		logger:         obslog.New("test"),
	})
	if err != nil {
		t.Fatalf("runIngest should not fail the whole document over one bad row: %v", err)
	}
	if out.factsWritten != 1 {
		t.Fatalf("expected only the mappable ricavi row to be persisted, got %d", out.factsWritten)
	}
}
