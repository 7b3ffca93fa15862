package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"finintel/pkg/domain"
)

// HTMLExtractor walks every <table> in an HTML document with goquery,
// treating each table's first row as the header row and the remaining rows
// as data; it does not search for a period-bearing header row. Narrative
// text outside tables is
// split into paragraph blocks and scanned for label-near-number
// candidates the same way PDFExtractor does.
type HTMLExtractor struct{}

var _ Extractor = (*HTMLExtractor)(nil)

func (h *HTMLExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(fileBytes)))
	if err != nil {
		return IngestResult{}, err
	}

	docRef := ref
	docRef.SourceType = domain.SourceTypeHTML
	docRef.ExtractionMethod = "goquery"

	result := IngestResult{}

	doc.Find("table").Each(func(tableIdx int, table *goquery.Selection) {
		block, candidates := h.parseTable(table, tableIdx, docRef)
		if block != nil {
			result.Blocks = append(result.Blocks, *block)
			result.Candidates = append(result.Candidates, candidates...)
		}
	})

	// Remove tables before extracting narrative text so table rows aren't
	// double-counted as label-near-number candidates.
	doc.Find("table").Remove()
	bodyText := strings.TrimSpace(doc.Find("body").Text())
	if bodyText == "" {
		bodyText = strings.TrimSpace(doc.Text())
	}
	for _, section := range splitSections(bodyText) {
		result.Blocks = append(result.Blocks, Block{
			Kind:      BlockNarrative,
			Text:      section,
			SourceRef: docRef,
		})
		result.Candidates = append(result.Candidates, findLabelNearNumberCandidates(section, docRef)...)
	}

	return result, nil
}

func (h *HTMLExtractor) parseTable(table *goquery.Selection, tableIdx int, ref domain.SourceReference) (*Block, []CandidateMetric) {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil, nil
	}

	idx := tableIdx
	tableRef := ref
	tableRef.TableIndex = &idx

	var cells []Cell
	var candidates []CandidateMetric
	maxCol := 0

	rows.Each(func(rowIdx int, row *goquery.Selection) {
		cellNodes := row.Find("td, th")
		if cellNodes.Length() == 0 {
			return
		}
		var label string
		var values []string
		cellNodes.Each(func(colIdx int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if colIdx == 0 {
				label = text
			} else {
				values = append(values, text)
			}
			if colIdx > maxCol {
				maxCol = colIdx
			}
			rowLabel := label
			cellRef := tableRef
			cellRef.RowLabel = &rowLabel
			cells = append(cells, Cell{Row: rowIdx, Col: colIdx, Value: text, SourceRef: cellRef})
		})

		if rowIdx == 0 || label == "" {
			return
		}
		rowLabel := label
		rowRef := tableRef
		rowRef.RowLabel = &rowLabel
		for _, v := range values {
			if v == "" {
				continue
			}
			candidates = append(candidates, CandidateMetric{Label: label, RawValue: v, SourceRef: rowRef})
		}
	})

	block := &Block{
		Kind:      BlockTable,
		Cells:     cells,
		Rows:      rows.Length(),
		Cols:      maxCol + 1,
		SourceRef: tableRef,
	}
	return block, candidates
}
