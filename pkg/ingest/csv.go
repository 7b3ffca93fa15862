package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"

	"finintel/pkg/domain"
)

// CSVExtractor reads comma-separated tables via the standard library's
// encoding/csv. No example repo in the pack wires a third-party CSV
// library, and Go's own csv reader already handles quoting, embedded
// commas, and ragged rows correctly — there is no ecosystem gap to fill.
type CSVExtractor struct{}

var _ Extractor = (*CSVExtractor)(nil)

func (x *CSVExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	reader := csv.NewReader(strings.NewReader(string(fileBytes)))
	reader.FieldsPerRecord = -1 // tolerate ragged rows rather than failing the whole file

	var rows [][]string
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return IngestResult{}, fmt.Errorf("csv file %q contained no readable rows", fileName)
	}

	sheetRef := ref
	sheetRef.SourceType = domain.SourceTypeCSV
	sheetRef.ExtractionMethod = "encoding/csv"

	maxCol := 0
	var cells []Cell
	for r, row := range rows {
		for c, val := range row {
			if c > maxCol {
				maxCol = c
			}
			label := row[0]
			cellRef := sheetRef
			cellRef.RowLabel = &label
			cells = append(cells, Cell{Row: r, Col: c, Value: val, SourceRef: cellRef})
		}
	}

	result := IngestResult{
		Blocks: []Block{{
			Kind:      BlockTable,
			Cells:     cells,
			Rows:      len(rows),
			Cols:      maxCol + 1,
			SourceRef: sheetRef,
		}},
	}

	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		label := strings.TrimSpace(row[0])
		if label == "" {
			continue
		}
		rowRef := sheetRef
		rowRef.RowLabel = &label
		for _, val := range row[1:] {
			if strings.TrimSpace(val) == "" {
				continue
			}
			result.Candidates = append(result.Candidates, CandidateMetric{Label: label, RawValue: val, SourceRef: rowRef})
		}
	}

	return result, nil
}
