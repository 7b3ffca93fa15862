package ingest

import (
	"testing"

	"finintel/pkg/domain"
)

func TestDetectTextTablesRecognizesLabelValueRuns(t *testing.T) {
	text := "Consolidated Balance Sheet\n" +
		"Total Assets        1,000   1,200\n" +
		"Total Liabilities   400     450\n" +
		"\n" +
		"Some narrative sentence follows here."
	tables := detectTextTables(text)
	if len(tables) != 1 {
		t.Fatalf("expected 1 detected table, got %d: %+v", len(tables), tables)
	}
	if len(tables[0].rows) != 2 {
		t.Fatalf("expected 2 table rows, got %d", len(tables[0].rows))
	}
	if tables[0].rows[0][0] != "Total Assets" {
		t.Fatalf("expected first row label Total Assets, got %q", tables[0].rows[0][0])
	}
}

func TestFindLabelNearNumberCandidatesRecognizesColonForm(t *testing.T) {
	text := "Revenue: 1,200\nNet Income: (50)\nThis is a narrative sentence with no trailing number."
	ref := domain.SourceReference{FileName: "f.pdf"}
	candidates := findLabelNearNumberCandidates(text, ref)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Label != "Revenue" {
		t.Fatalf("expected label Revenue, got %q", candidates[0].Label)
	}
}

func TestSplitSectionsSplitsOnBlankLines(t *testing.T) {
	sections := splitSections("first paragraph\n\nsecond paragraph\n\n\nthird paragraph")
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d: %+v", len(sections), sections)
	}
}
