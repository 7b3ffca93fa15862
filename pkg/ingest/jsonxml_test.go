package ingest

import (
	"testing"

	"finintel/pkg/domain"
)

func TestJSONExtractorFlattensNestedNumbers(t *testing.T) {
	j := &JSONExtractor{}
	input := []byte(`{"income_statement":{"revenue":1000.5,"costs":{"cogs":400}}}`)
	result, err := j.Extract(input, "facts.json", domain.SourceReference{FileName: "facts.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byLabel := map[string]string{}
	for _, c := range result.Candidates {
		byLabel[c.Label] = c.RawValue
	}
	if byLabel["income_statement.revenue"] != "1000.5" {
		t.Fatalf("expected flattened revenue candidate, got %+v", byLabel)
	}
	if byLabel["income_statement.costs.cogs"] != "400" {
		t.Fatalf("expected flattened nested cogs candidate, got %+v", byLabel)
	}
}

func TestJSONExtractorHandlesArrays(t *testing.T) {
	j := &JSONExtractor{}
	input := []byte(`{"periods":[{"year":2023,"revenue":100},{"year":2024,"revenue":120}]}`)
	result, err := j.Extract(input, "facts.json", domain.SourceReference{FileName: "facts.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Candidates) != 4 {
		t.Fatalf("expected 4 flattened candidates, got %d: %+v", len(result.Candidates), result.Candidates)
	}
}

func TestXMLExtractorWalksElementPaths(t *testing.T) {
	x := &XMLExtractor{}
	input := []byte(`<filing><incomeStatement><revenue>1000</revenue></incomeStatement></filing>`)
	result, err := x.Extract(input, "facts.xml", domain.SourceReference{FileName: "facts.xml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found bool
	for _, c := range result.Candidates {
		if c.Label == "filing.incomeStatement.revenue" && c.RawValue == "1000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected revenue candidate with dotted element path, got %+v", result.Candidates)
	}
}
