package ingest

import (
	"path/filepath"
	"strings"

	"finintel/pkg/domain"
)

// TabularExtractor is the RouteStructured dispatch point: it re-derives the
// concrete structured format (xlsx, csv, json, xml) and delegates to the
// matching Extractor, keeping the Router's registration table flat (one
// Extractor per RouteClass) while still branching on format underneath it.
type TabularExtractor struct {
	xlsx XLSXExtractor
	csv  CSVExtractor
	json JSONExtractor
	xml  XMLExtractor
}

var _ Extractor = (*TabularExtractor)(nil)

func (t *TabularExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	switch detectStructuredFormat(fileBytes, fileName) {
	case "xlsx":
		return t.xlsx.Extract(fileBytes, fileName, ref)
	case "json":
		return t.json.Extract(fileBytes, fileName, ref)
	case "xml":
		return t.xml.Extract(fileBytes, fileName, ref)
	default:
		return t.csv.Extract(fileBytes, fileName, ref)
	}
}

func detectStructuredFormat(fileBytes []byte, fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".json":
		return "json"
	case ".xml":
		return "xml"
	case ".csv":
		return "csv"
	}
	if format, ok := classifyMagicBytes(fileBytes); ok && format == "xlsx" {
		return "xlsx"
	}
	return classifyContentSniff(fileBytes)
}
