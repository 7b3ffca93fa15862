package factstore

import (
	"testing"
	"time"

	"finintel/pkg/domain"
)

func factAt(sourceType domain.SourceType, method string, confidence float64, extractedAt time.Time) domain.Fact {
	return domain.Fact{
		TenantID: "acme",
		EntityID: "acme-srl",
		MetricID: "ricavi",
		Value:    100,
		SourceRef: domain.SourceReference{
			SourceType:       sourceType,
			ExtractionMethod: method,
			ExtractedAt:      extractedAt,
			Confidence:       confidence,
		},
	}
}

func TestElectAuthoritativeSingleCandidate(t *testing.T) {
	f := factAt(domain.SourceTypeExcel, "table", 0.9, time.Now())
	got := ElectAuthoritative([]domain.Fact{f})
	if got.SourceRef.ExtractionMethod != "table" {
		t.Fatalf("expected the only candidate to win, got %+v", got)
	}
}

func TestElectAuthoritativePrefersHigherSpecificityAndQuality(t *testing.T) {
	now := time.Now()
	scanned := factAt(domain.SourceTypePDFScanned, "ocr", 0.6, now)
	excel := factAt(domain.SourceTypeExcel, "table", 0.6, now)

	got := ElectAuthoritative([]domain.Fact{scanned, excel})
	if got.SourceRef.SourceType != domain.SourceTypeExcel {
		t.Fatalf("expected the excel-sourced fact to be elected, got source type %s", got.SourceRef.SourceType)
	}
}

func TestElectAuthoritativePrefersRecency(t *testing.T) {
	older := factAt(domain.SourceTypePDFNative, "narrative", 0.8, time.Now().Add(-48*time.Hour))
	newer := factAt(domain.SourceTypePDFNative, "narrative", 0.8, time.Now())

	got := ElectAuthoritative([]domain.Fact{older, newer})
	if !got.SourceRef.ExtractedAt.Equal(newer.SourceRef.ExtractedAt) {
		t.Fatalf("expected the more recent fact to be elected")
	}
}

func TestElectAuthoritativeDeterministicTieBreak(t *testing.T) {
	now := time.Now()
	a := factAt(domain.SourceTypeExcel, "table", 0.8, now)
	a.SourceRef.FileName = "a.xlsx"
	b := factAt(domain.SourceTypeExcel, "table", 0.8, now)
	b.SourceRef.FileName = "b.xlsx"

	got1 := ElectAuthoritative([]domain.Fact{a, b})
	got2 := ElectAuthoritative([]domain.Fact{b, a})

	if got1.SourceRef.String() != got2.SourceRef.String() {
		t.Fatalf("expected election to be order-independent for tied scores, got %q vs %q",
			got1.SourceRef.String(), got2.SourceRef.String())
	}
	if got1.SourceRef.String() != a.SourceRef.String() {
		t.Fatalf("expected the lexicographically smaller source_ref %q to win the tie, got %q",
			a.SourceRef.String(), got1.SourceRef.String())
	}
}

func TestSpecificityRankOrdersSourceTypes(t *testing.T) {
	if specificityRank(domain.SourceTypeExcel) <= specificityRank(domain.SourceTypePDFNative) {
		t.Fatal("expected excel to rank above native pdf text")
	}
	if specificityRank(domain.SourceTypePDFNative) <= specificityRank(domain.SourceTypePDFScanned) {
		t.Fatal("expected native pdf to rank above scanned pdf")
	}
	if specificityRank(domain.SourceTypePDFScanned) <= specificityRank(domain.SourceType("unknown")) {
		t.Fatal("expected scanned pdf to rank above an unrecognized source type")
	}
}

func TestSourceQualityRankOrdersExtractionMethods(t *testing.T) {
	if sourceQualityRank("table") <= sourceQualityRank("narrative_text") {
		t.Fatal("expected table extraction to rank above narrative text")
	}
	if sourceQualityRank("narrative_text") <= sourceQualityRank("ocr_footnote") {
		t.Fatal("expected narrative text to rank above ocr")
	}
	if sourceQualityRank("ocr_footnote") <= sourceQualityRank("calculated/pfn") {
		t.Fatal("expected ocr to rank above a calculated inference")
	}
}
