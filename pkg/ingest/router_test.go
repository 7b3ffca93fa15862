package ingest

import (
	"testing"

	"finintel/pkg/domain"
)

func TestClassifyMagicBytesPDF(t *testing.T) {
	r := NewRouter()
	class, format := r.Classify([]byte("%PDF-1.7\n..."), "report.bin")
	if format != "pdf" {
		t.Fatalf("expected format pdf, got %q", format)
	}
	if class != RouteUnstructuredNative {
		t.Fatalf("expected RouteUnstructuredNative, got %q", class)
	}
}

func TestClassifyExtensionFallback(t *testing.T) {
	r := NewRouter()
	class, format := r.Classify([]byte("label,value\nRevenue,100"), "data.csv")
	if format != "csv" || class != RouteStructured {
		t.Fatalf("got class=%q format=%q", class, format)
	}
}

func TestClassifyContentSniffJSON(t *testing.T) {
	r := NewRouter()
	_, format := r.Classify([]byte(`{"revenue": 100}`), "payload")
	if format != "json" {
		t.Fatalf("expected json, got %q", format)
	}
}

func TestClassifyZipContainerDistinguishesXLSXFromDocx(t *testing.T) {
	xlsxBytes := append([]byte("PK\x03\x04"), []byte("xl/workbook.xml stuff")...)
	docxBytes := append([]byte("PK\x03\x04"), []byte("word/document.xml stuff")...)

	r := NewRouter()
	_, xlsxFormat := r.Classify(xlsxBytes, "")
	_, docxFormat := r.Classify(docxBytes, "")

	if xlsxFormat != "xlsx" {
		t.Fatalf("expected xlsx, got %q", xlsxFormat)
	}
	if docxFormat != "docx" {
		t.Fatalf("expected docx, got %q", docxFormat)
	}
}

func TestRouteAndExtractCSV(t *testing.T) {
	r := NewRouter()
	csvBytes := []byte("Line Item,2023,2024\nRevenue,100,120\nEBITDA,20,25\n")
	result, err := r.RouteAndExtract(csvBytes, "financials.csv", "doc-1", domain.SourceReference{FileName: "financials.csv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DocumentID != "doc-1" {
		t.Fatalf("expected document id to be set")
	}
	if len(result.Blocks) != 1 || result.Blocks[0].Kind != BlockTable {
		t.Fatalf("expected one table block, got %+v", result.Blocks)
	}
	if len(result.Candidates) == 0 {
		t.Fatalf("expected candidate metrics from csv rows")
	}
}

func TestRouteAndExtractUnknownRouteClassErrors(t *testing.T) {
	r := &Router{extractors: map[RouteClass]Extractor{}}
	_, err := r.RouteAndExtract([]byte("anything"), "x.csv", "doc", domain.SourceReference{})
	if err == nil {
		t.Fatalf("expected error for unregistered route class")
	}
}
