package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"finintel/pkg/domain"
)

// PDFExtractor extracts narrative blocks, label-near-number candidates, and
// best-effort table rows from a PDF, falling back to OCR per page when
// pdfcpu's content extraction comes back empty. Its shape mirrors
// quaero's pdf.Extractor, generalized from "extract full text" to
// "extract narrative + table blocks with per-page provenance".
type PDFExtractor struct {
	OCR OCREngine
}

var _ Extractor = (*PDFExtractor)(nil)

func (p *PDFExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	tempDir, err := os.MkdirTemp("", "finintel-pdf-")
	if err != nil {
		return IngestResult{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "doc.pdf")
	if err := os.WriteFile(tempFile, fileBytes, 0o644); err != nil {
		return IngestResult{}, fmt.Errorf("write temp pdf: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read pdf context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return IngestResult{}, fmt.Errorf("create page output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	pageTexts := make(map[int]string)
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err == nil {
		files, _ := os.ReadDir(outDir)
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			content, readErr := os.ReadFile(filepath.Join(outDir, f.Name()))
			if readErr != nil {
				continue
			}
			var pageNum int
			if _, scanErr := fmt.Sscanf(f.Name(), "page_%d", &pageNum); scanErr != nil {
				fmt.Sscanf(f.Name(), "Content_page_%d", &pageNum)
			}
			if pageNum > 0 {
				pageTexts[pageNum] = string(content)
			}
		}
	}

	result := IngestResult{}
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		sourceType := domain.SourceTypePDFNative
		confidence := 1.0

		if text == "" && p.OCR != nil {
			ocrText, ocrConfidence, ocrErr := p.OCR.RecognizeText(nil)
			if ocrErr == nil && ocrText != "" {
				text = ocrText
				sourceType = domain.SourceTypePDFScanned
				confidence = ocrConfidence
			}
		}
		if text == "" {
			continue
		}

		page := pageNum
		pageRef := domain.SourceReference{
			FileName:         fileName,
			SourceType:       sourceType,
			Page:             &page,
			ExtractionMethod: "pdfcpu",
			ExtractedAt:      ref.ExtractedAt,
			Confidence:       confidence,
		}

		sections := splitSections(text)
		for _, section := range sections {
			result.Blocks = append(result.Blocks, Block{
				Kind:      BlockNarrative,
				Text:      section,
				SourceRef: pageRef,
			})
			result.Candidates = append(result.Candidates, findLabelNearNumberCandidates(section, pageRef)...)
		}

		tableIdx := 0
		for _, table := range detectTextTables(text) {
			result.Blocks = append(result.Blocks, tableToBlock(table, pageRef, tableIdx))
			result.Candidates = append(result.Candidates, tableToCandidates(table, pageRef, tableIdx)...)
			tableIdx++
		}
	}

	return result, nil
}

// textTable is a best-effort table recovered from plain extracted text:
// pdfcpu's content extraction yields a text stream, not layout geometry, so
// "tables" are recognized heuristically as runs of consecutive lines that
// each split into a label followed by two or more numeric-looking tokens
// (spec.md §9's "lattice vs. stream table detection" is approximated here
// rather than implemented against real glyph positions, which pdfcpu's
// free API does not expose).
type textTable struct {
	rows [][]string // row[0] is the label, row[1:] are value columns
}

var tableRowRe = regexp.MustCompile(`^(.{2,80}?)\s{2,}([\d().,\-%$€\s]+)$`)
var numericTokenRe = regexp.MustCompile(`[\d]`)

func detectTextTables(text string) []textTable {
	lines := strings.Split(text, "\n")
	var tables []textTable
	var current textTable
	flush := func() {
		if len(current.rows) >= 2 {
			tables = append(tables, current)
		}
		current = textTable{}
	}
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		m := tableRowRe.FindStringSubmatch(trimmed)
		if m == nil || !numericTokenRe.MatchString(m[2]) {
			flush()
			continue
		}
		label := strings.TrimSpace(m[1])
		cols := strings.Fields(m[2])
		row := append([]string{label}, cols...)
		current.rows = append(current.rows, row)
	}
	flush()
	return tables
}

func tableToBlock(t textTable, ref domain.SourceReference, tableIdx int) Block {
	idx := tableIdx
	blockRef := ref
	blockRef.TableIndex = &idx

	maxCols := 0
	for _, row := range t.rows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	cells := make([]Cell, 0, len(t.rows)*maxCols)
	for r, row := range t.rows {
		for c, val := range row {
			cellRef := blockRef
			label := row[0]
			cellRef.RowLabel = &label
			cells = append(cells, Cell{Row: r, Col: c, Value: val, SourceRef: cellRef})
		}
	}

	return Block{
		Kind:      BlockTable,
		Cells:     cells,
		Rows:      len(t.rows),
		Cols:      maxCols,
		SourceRef: blockRef,
	}
}

func tableToCandidates(t textTable, ref domain.SourceReference, tableIdx int) []CandidateMetric {
	idx := tableIdx
	var out []CandidateMetric
	for _, row := range t.rows {
		if len(row) < 2 {
			continue
		}
		label := row[0]
		rowRef := ref
		rowRef.TableIndex = &idx
		rowRef.RowLabel = &label
		for _, val := range row[1:] {
			out = append(out, CandidateMetric{Label: label, RawValue: val, SourceRef: rowRef})
		}
	}
	return out
}

// findLabelNearNumberCandidates recognizes the narrative-text pattern
// spec.md §4.1 calls out: "Label: value" or "Label value" on a single
// line. It scans every line of the text it is given, including lines that
// also belong to a detected table.
var narrativeLabelRe = regexp.MustCompile(`^([A-Za-zÀ-ÖØ-öø-ÿ][A-Za-zÀ-ÖØ-öø-ÿ\s/,'&().-]{2,80}?)[:\s]+([-(]?\s?[\d][\d.,\s]*\)?%?)\s*$`)

func findLabelNearNumberCandidates(text string, ref domain.SourceReference) []CandidateMetric {
	var out []CandidateMetric
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		m := narrativeLabelRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		out = append(out, CandidateMetric{
			Label:     strings.TrimSpace(m[1]),
			RawValue:  strings.TrimSpace(m[2]),
			SourceRef: ref,
		})
	}
	return out
}

