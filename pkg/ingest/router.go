package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"finintel/pkg/corerr"
	"finintel/pkg/domain"
)

var (
	pdfMagic  = []byte("%PDF-")
	zipMagic  = []byte("PK\x03\x04")
	htmlSniff = []byte("<!doctype html")
)

// Router classifies raw file bytes into a RouteClass and dispatches to the
// registered Extractor, the way pkg/core/ingest and pkg/core/edgar picked a
// parsing strategy per filing source type — generalized here to a real
// dispatch table instead of one hardcoded EDGAR path.
type Router struct {
	extractors map[RouteClass]Extractor
}

// NewRouter wires every Extractor this deployment understands. A Router
// with no xlsx/pdf extractor configured still routes structured text
// formats (CSV, JSON, XML, HTML) — callers building a minimal ingest path
// can omit the heavier ones.
func NewRouter() *Router {
	return &Router{
		extractors: map[RouteClass]Extractor{
			RouteStructured:          &TabularExtractor{},
			RouteUnstructuredNative:  &PDFExtractor{},
			RouteUnstructuredScanned: &PDFExtractor{OCR: NewNoopOCREngine()},
			RouteHybrid:              &HTMLExtractor{},
		},
	}
}

// WithExtractor overrides the Extractor registered for a RouteClass, e.g.
// to plug in a real OCR backend in place of the no-op default.
func (r *Router) WithExtractor(class RouteClass, e Extractor) *Router {
	r.extractors[class] = e
	return r
}

// Classify inspects magic bytes, file extension, and content sniffing, in
// that priority order, and returns the RouteClass plus the concrete format
// detected (spec.md §4.1: "magic bytes, falling back to extension, falling
// back to content sniffing").
func (r *Router) Classify(fileBytes []byte, fileName string) (RouteClass, string) {
	if format, ok := classifyMagicBytes(fileBytes); ok {
		return routeForFormat(format), format
	}
	if format, ok := classifyExtension(fileName); ok {
		return routeForFormat(format), format
	}
	format := classifyContentSniff(fileBytes)
	return routeForFormat(format), format
}

func classifyMagicBytes(b []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(b, pdfMagic):
		return "pdf", true
	case bytes.HasPrefix(b, zipMagic):
		// ZIP-based containers: disambiguate xlsx vs docx by entry names.
		if format, ok := sniffZipContainer(b); ok {
			return format, true
		}
		return "zip", true
	}
	return "", false
}

func classifyExtension(fileName string) (string, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "pdf", true
	case ".xlsx", ".xlsm":
		return "xlsx", true
	case ".csv":
		return "csv", true
	case ".json":
		return "json", true
	case ".xml":
		return "xml", true
	case ".html", ".htm":
		return "html", true
	case ".txt", ".md":
		return "text", true
	}
	return "", false
}

func classifyContentSniff(b []byte) string {
	trimmed := bytes.TrimLeft(b, " \t\r\n﻿")
	switch {
	case len(trimmed) == 0:
		return "text"
	case trimmed[0] == '{' || trimmed[0] == '[':
		return "json"
	case trimmed[0] == '<':
		lower := bytes.ToLower(trimmed)
		if bytes.HasPrefix(lower, htmlSniff) || bytes.Contains(lower[:min(len(lower), 200)], []byte("<html")) {
			return "html"
		}
		return "xml"
	case bytes.ContainsRune(trimmed[:min(len(trimmed), 500)], ','):
		return "csv"
	default:
		return "text"
	}
}

func routeForFormat(format string) RouteClass {
	switch format {
	case "xlsx", "csv", "json", "xml":
		return RouteStructured
	case "html":
		return RouteHybrid
	case "pdf":
		// Native-text vs scanned PDF is decided inside PDFExtractor once
		// pdfcpu has parsed the document (it needs the page content to
		// tell whether a page yields extractable text), so Classify routes
		// every PDF through RouteUnstructuredNative and the extractor
		// itself falls back to its configured OCREngine per page.
		return RouteUnstructuredNative
	default:
		return RouteUnstructuredNative
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RouteAndExtract is the Router's single entry point: classify, dispatch,
// extract. It never returns a partially-nil IngestResult — extraction
// failures are reported as *corerr.Error with Kind ExtractionFailed.
func (r *Router) RouteAndExtract(fileBytes []byte, fileName string, documentID string, ref domain.SourceReference) (IngestResult, error) {
	class, format := r.Classify(fileBytes, fileName)
	extractor, ok := r.extractors[class]
	if !ok {
		return IngestResult{}, corerr.UnsupportedFormat("NO_EXTRACTOR",
			fmt.Sprintf("no extractor registered for route class %q (format %q)", class, format))
	}
	result, err := extractor.Extract(fileBytes, fileName, ref)
	if err != nil {
		return IngestResult{}, corerr.Wrap(corerr.KindExtractionFailed, "EXTRACT_FAILED",
			fmt.Sprintf("extraction failed for %q (format %q)", fileName, format), err)
	}
	result.DocumentID = documentID
	result.Candidates = DedupeCandidates(result.Candidates)
	return result, nil
}

func sniffZipContainer(b []byte) (string, bool) {
	// OOXML containers carry a "[Content_Types].xml" entry and a
	// format-specific root relationship; without unzipping, a cheap local
	// entry-name scan over the raw bytes already distinguishes xlsx from
	// docx in the overwhelming majority of real files (sufficient for
	// routing — the xlsx extractor itself does the authoritative parse).
	if bytes.Contains(b, []byte("xl/workbook.xml")) {
		return "xlsx", true
	}
	if bytes.Contains(b, []byte("word/document.xml")) {
		return "docx", true
	}
	return "", false
}
