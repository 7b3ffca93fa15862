package ingest

import (
	"testing"

	"finintel/pkg/domain"
)

func TestCSVExtractorBuildsCandidatesFromDataRows(t *testing.T) {
	c := &CSVExtractor{}
	input := []byte("Line Item,2023,2024\nRevenue,100,120\nEBITDA,20,25\n")
	result, err := c.Extract(input, "figures.csv", domain.SourceReference{FileName: "figures.csv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Candidates) != 4 {
		t.Fatalf("expected 4 candidates (2 rows x 2 year columns), got %d: %+v", len(result.Candidates), result.Candidates)
	}
	for _, cand := range result.Candidates {
		if cand.Label == "Line Item" {
			t.Fatalf("header row should not produce a candidate")
		}
	}
}

func TestCSVExtractorToleratesRaggedRows(t *testing.T) {
	c := &CSVExtractor{}
	input := []byte("Line Item,2023,2024\nRevenue,100\nEBITDA,20,25,extra\n")
	result, err := c.Extract(input, "figures.csv", domain.SourceReference{FileName: "figures.csv"})
	if err != nil {
		t.Fatalf("unexpected error for ragged rows: %v", err)
	}
	if len(result.Blocks) != 1 {
		t.Fatalf("expected a single table block even with ragged rows")
	}
}

func TestCSVExtractorEmptyFileErrors(t *testing.T) {
	c := &CSVExtractor{}
	_, err := c.Extract([]byte(""), "empty.csv", domain.SourceReference{FileName: "empty.csv"})
	if err == nil {
		t.Fatalf("expected error for empty csv file")
	}
}
