package ingest

import (
	"testing"

	"finintel/pkg/domain"
)

func TestDedupeCandidatesRemovesExactDuplicates(t *testing.T) {
	ref := domain.SourceReference{FileName: "f.pdf"}
	in := []CandidateMetric{
		{Label: "Revenue", RawValue: "100", SourceRef: ref},
		{Label: "revenue", RawValue: "100", SourceRef: ref},
		{Label: "Revenue", RawValue: "100", SourceRef: domain.SourceReference{FileName: "g.pdf"}},
	}
	out := DedupeCandidates(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique candidates, got %d: %+v", len(out), out)
	}
}
