package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"finintel/pkg/domain"
)

// XLSXExtractor reads OOXML spreadsheets directly via archive/zip and
// encoding/xml. No library in the retrieval pack imports a dedicated xlsx
// reader (the pack's spreadsheet handling in pkg/core/ingest/ingestor.go is
// a mock stub, not a real parser), and the OOXML format is simple enough
// — a zip of well-formed XML parts — that the standard library's own zip
// and xml packages are the idiomatic choice here rather than reaching for
// an unvalidated third-party dependency with no grounding in the corpus.
type XLSXExtractor struct{}

var _ Extractor = (*XLSXExtractor)(nil)

type sheetXML struct {
	XMLName xml.Name `xml:"worksheet"`
	SheetData struct {
		Rows []rowXML `xml:"row"`
	} `xml:"sheetData"`
}

type rowXML struct {
	R     int       `xml:"r,attr"`
	Cells []cellXML `xml:"c"`
}

type cellXML struct {
	R string `xml:"r,attr"`   // e.g. "B2"
	T string `xml:"t,attr"`   // type: "s" shared string, "str" inline formula string, else numeric
	V string `xml:"v"`
	Is *struct {
		T string `xml:"t"`
	} `xml:"is"`
}

type sstXML struct {
	Items []struct {
		T string `xml:"t"`
	} `xml:"si"`
}

type workbookXML struct {
	Sheets struct {
		Sheet []struct {
			Name    string `xml:"name,attr"`
			SheetID string `xml:"sheetId,attr"`
			RID     string `xml:"id,attr"`
		} `xml:"sheet"`
	} `xml:"sheets"`
}

func (x *XLSXExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		return IngestResult{}, fmt.Errorf("open xlsx as zip: %w", err)
	}

	parts := make(map[string]*zip.File)
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	sharedStrings, err := readSharedStrings(parts["xl/sharedStrings.xml"])
	if err != nil {
		return IngestResult{}, fmt.Errorf("read shared strings: %w", err)
	}

	var wb workbookXML
	if f, ok := parts["xl/workbook.xml"]; ok {
		if err := unmarshalZipPart(f, &wb); err != nil {
			return IngestResult{}, fmt.Errorf("parse workbook.xml: %w", err)
		}
	}

	sheetNames := make([]string, 0, len(wb.Sheets.Sheet))
	for _, s := range wb.Sheets.Sheet {
		sheetNames = append(sheetNames, s.Name)
	}
	if len(sheetNames) == 0 {
		sheetNames = listWorksheetParts(parts)
	}

	result := IngestResult{}
	for i, sheetName := range sheetNames {
		partName := fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		f, ok := parts[partName]
		if !ok {
			continue
		}
		var sheet sheetXML
		if err := unmarshalZipPart(f, &sheet); err != nil {
			return IngestResult{}, fmt.Errorf("parse %s: %w", partName, err)
		}

		name := sheetName
		sheetRef := ref
		sheetRef.Sheet = &name
		sheetRef.SourceType = domain.SourceTypeExcel
		sheetRef.ExtractionMethod = "xlsx-ooxml"

		var cells []Cell
		maxCol := 0
		for rowIdx, row := range sheet.SheetData.Rows {
			for _, c := range row.Cells {
				colIdx, _ := columnIndexFromRef(c.R)
				value := resolveCellValue(c, sharedStrings)
				cellName := c.R
				cellRef := sheetRef
				cellRef.Cell = &cellName
				cells = append(cells, Cell{Row: rowIdx, Col: colIdx, Value: value, SourceRef: cellRef})
				if colIdx > maxCol {
					maxCol = colIdx
				}
			}
			result.Candidates = append(result.Candidates, rowToCandidates(row, sharedStrings, sheetRef)...)
		}

		result.Blocks = append(result.Blocks, Block{
			Kind:      BlockTable,
			Cells:     cells,
			Rows:      len(sheet.SheetData.Rows),
			Cols:      maxCol + 1,
			SourceRef: sheetRef,
		})
	}

	return result, nil
}

func readSharedStrings(f *zip.File) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	var sst sstXML
	if err := unmarshalZipPart(f, &sst); err != nil {
		return nil, err
	}
	out := make([]string, len(sst.Items))
	for i, item := range sst.Items {
		out[i] = item.T
	}
	return out, nil
}

func unmarshalZipPart(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

func listWorksheetParts(parts map[string]*zip.File) []string {
	var names []string
	for name := range parts {
		if strings.HasPrefix(name, "xl/worksheets/sheet") && strings.HasSuffix(name, ".xml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func resolveCellValue(c cellXML, sharedStrings []string) string {
	switch c.T {
	case "s":
		idx, err := strconv.Atoi(c.V)
		if err != nil || idx < 0 || idx >= len(sharedStrings) {
			return ""
		}
		return sharedStrings[idx]
	case "str", "inlineStr":
		if c.Is != nil {
			return c.Is.T
		}
		return c.V
	default:
		return c.V
	}
}

func rowToCandidates(row rowXML, sharedStrings []string, ref domain.SourceReference) []CandidateMetric {
	if len(row.Cells) < 2 {
		return nil
	}
	label := resolveCellValue(row.Cells[0], sharedStrings)
	if label == "" {
		return nil
	}
	var out []CandidateMetric
	for _, c := range row.Cells[1:] {
		value := resolveCellValue(c, sharedStrings)
		if value == "" {
			continue
		}
		cellName := c.R
		cellRef := ref
		cellRef.Cell = &cellName
		cellRef.RowLabel = &label
		out = append(out, CandidateMetric{Label: label, RawValue: value, SourceRef: cellRef})
	}
	return out
}

var colRefRe = regexp.MustCompile(`^([A-Z]+)(\d+)$`)

// columnIndexFromRef converts a spreadsheet cell reference like "AB12" into
// its zero-based column index.
func columnIndexFromRef(ref string) (int, error) {
	m := colRefRe.FindStringSubmatch(strings.ToUpper(ref))
	if m == nil {
		return 0, fmt.Errorf("invalid cell reference: %q", ref)
	}
	letters := m[1]
	idx := 0
	for _, ch := range letters {
		idx = idx*26 + int(ch-'A'+1)
	}
	return idx - 1, nil
}
