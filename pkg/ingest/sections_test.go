package ingest

import (
	"strings"
	"testing"

	"finintel/pkg/domain"
)

func TestSplitNamedSectionsFindsHeadings(t *testing.T) {
	content := "Some cover page text.\n\nBalance Sheet\nAssets 100\nLiabilities 40\n\nIncome Statement\nRevenue 500\n"
	sections := SplitNamedSections(content)
	if len(sections) != 2 {
		t.Fatalf("expected 2 named sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "Balance Sheet" {
		t.Fatalf("expected first section Balance Sheet, got %q", sections[0].Title)
	}
	if !strings.Contains(sections[0].Content, "Assets 100") {
		t.Fatalf("expected balance sheet content to include its body, got %q", sections[0].Content)
	}
}

func TestSplitNamedSectionsNoHeadingsReturnsNil(t *testing.T) {
	sections := SplitNamedSections("just some plain narrative with no recognizable heading")
	if sections != nil {
		t.Fatalf("expected nil, got %+v", sections)
	}
}

func TestChunkParagraphsSplitsOversizedText(t *testing.T) {
	longText := strings.Repeat("word ", 1000)
	blocks := []Block{{Kind: BlockNarrative, Text: longText, SourceRef: domain.SourceReference{FileName: "f.pdf"}}}
	chunks := ChunkParagraphs(blocks, "doc-1")
	if len(chunks) < 2 {
		t.Fatalf("expected oversized paragraph to split into multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if estimateTokens(c.Text) > maxChunkTokens {
			t.Fatalf("chunk exceeds max tokens: %d", estimateTokens(c.Text))
		}
	}
}

func TestChunkTablesSerializesGrid(t *testing.T) {
	ref := domain.SourceReference{FileName: "f.xlsx"}
	block := Block{
		Kind: BlockTable,
		Rows: 2, Cols: 2,
		Cells: []Cell{
			{Row: 0, Col: 0, Value: "Revenue"},
			{Row: 0, Col: 1, Value: "100"},
			{Row: 1, Col: 0, Value: "EBITDA"},
			{Row: 1, Col: 1, Value: "20"},
		},
		SourceRef: ref,
	}
	chunks := ChunkTables([]Block{block}, "doc-1")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "Revenue\t100") {
		t.Fatalf("expected tab-separated grid serialization, got %q", chunks[0].Text)
	}
}
