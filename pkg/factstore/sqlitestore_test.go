package factstore

import (
	"context"
	"testing"
	"time"

	"finintel/pkg/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func baseFact(value float64, sourceType domain.SourceType, method string, confidence float64, extractedAt time.Time) domain.Fact {
	return domain.Fact{
		TenantID:   "acme",
		EntityID:   "acme-srl",
		DocumentID: "doc-1",
		MetricID:   "ricavi",
		Value:      value,
		Unit:       domain.UnitCurrency,
		PeriodKey:  domain.PeriodKey{Type: domain.PeriodFY, Year: 2024},
		Scenario:   domain.ScenarioActual,
		Perimeter:  domain.PerimeterStatutory,
		SourceRef: domain.SourceReference{
			FileName:         "bilancio.xlsx",
			SourceType:       sourceType,
			ExtractionMethod: method,
			ExtractedAt:      extractedAt,
			Confidence:       confidence,
		},
	}
}

func TestSQLiteStoreUpsertAndResolveAuthoritative(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fact := baseFact(1000, domain.SourceTypeExcel, "table", 0.9, time.Now())
	id, err := store.UpsertFact(ctx, fact)
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}
	if id == "" {
		t.Fatal("expected UpsertFact to assign an id")
	}

	got, ok, err := store.ResolveAuthoritative(ctx, fact.DedupKey())
	if err != nil {
		t.Fatalf("ResolveAuthoritative: %v", err)
	}
	if !ok {
		t.Fatal("expected a single upserted fact to become authoritative")
	}
	if got.Value != 1000 || got.ID != id {
		t.Fatalf("unexpected authoritative fact: %+v", got)
	}
}

func TestSQLiteStoreReElectsOnBetterSource(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	scanned := baseFact(950, domain.SourceTypePDFScanned, "ocr", 0.5, time.Now().Add(-time.Hour))
	if _, err := store.UpsertFact(ctx, scanned); err != nil {
		t.Fatalf("UpsertFact(scanned): %v", err)
	}

	excel := baseFact(1000, domain.SourceTypeExcel, "table", 0.95, time.Now())
	if _, err := store.UpsertFact(ctx, excel); err != nil {
		t.Fatalf("UpsertFact(excel): %v", err)
	}

	got, ok, err := store.ResolveAuthoritative(ctx, excel.DedupKey())
	if err != nil {
		t.Fatalf("ResolveAuthoritative: %v", err)
	}
	if !ok {
		t.Fatal("expected an authoritative fact")
	}
	if got.Value != 1000 {
		t.Fatalf("expected the higher-specificity excel fact to win election, got value %v", got.Value)
	}

	history, err := store.QueryFactsWithHistory(ctx, Predicate{TenantID: "acme"})
	if err != nil {
		t.Fatalf("QueryFactsWithHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both facts to remain in history, got %d", len(history))
	}
}

func TestSQLiteStoreQueryFactsFiltersByDocumentID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	f1 := baseFact(1000, domain.SourceTypeExcel, "table", 0.9, time.Now())
	f1.DocumentID = "doc-a"
	f2 := baseFact(1000, domain.SourceTypeExcel, "table", 0.9, time.Now())
	f2.DocumentID = "doc-b"
	f2.MetricID = "cogs"

	if _, err := store.UpsertFact(ctx, f1); err != nil {
		t.Fatalf("UpsertFact(f1): %v", err)
	}
	if _, err := store.UpsertFact(ctx, f2); err != nil {
		t.Fatalf("UpsertFact(f2): %v", err)
	}

	docA := "doc-a"
	results, err := store.QueryFacts(ctx, Predicate{TenantID: "acme", DocumentID: &docA})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(results) != 1 || results[0].DocumentID != "doc-a" {
		t.Fatalf("expected exactly one fact scoped to doc-a, got %+v", results)
	}
}

func TestSQLiteStoreQueryFactsOnlyReturnsAuthoritative(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := baseFact(900, domain.SourceTypePDFScanned, "ocr", 0.5, time.Now().Add(-time.Hour))
	newer := baseFact(950, domain.SourceTypeExcel, "table", 0.9, time.Now())
	if _, err := store.UpsertFact(ctx, older); err != nil {
		t.Fatalf("UpsertFact(older): %v", err)
	}
	if _, err := store.UpsertFact(ctx, newer); err != nil {
		t.Fatalf("UpsertFact(newer): %v", err)
	}

	results, err := store.QueryFacts(ctx, Predicate{TenantID: "acme"})
	if err != nil {
		t.Fatalf("QueryFacts: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected only the authoritative fact, got %d facts", len(results))
	}
	if results[0].Value != 950 {
		t.Fatalf("expected the authoritative fact's value 950, got %v", results[0].Value)
	}
}

func TestSQLiteStoreResolveAuthoritativeReturnsFalseWhenAbsent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.ResolveAuthoritative(ctx, domain.DedupKey{TenantID: "acme", MetricID: "ricavi"})
	if err != nil {
		t.Fatalf("ResolveAuthoritative: %v", err)
	}
	if ok {
		t.Fatal("expected no authoritative fact for a key that was never written")
	}
}

func TestSQLiteStoreUpsertAssignsIDAndCreatedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	fact := baseFact(1000, domain.SourceTypeExcel, "table", 0.9, time.Now())
	fact.ID = ""
	fact.CreatedAt = time.Time{}

	id, err := store.UpsertFact(ctx, fact)
	if err != nil {
		t.Fatalf("UpsertFact: %v", err)
	}

	got, ok, err := store.ResolveAuthoritative(ctx, fact.DedupKey())
	if err != nil {
		t.Fatalf("ResolveAuthoritative: %v", err)
	}
	if !ok {
		t.Fatal("expected the fact to be authoritative")
	}
	if got.ID != id {
		t.Fatalf("expected the returned id %q to match the stored fact's id %q", id, got.ID)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected UpsertFact to stamp created_at when it was left zero")
	}
}
