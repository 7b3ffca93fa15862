package ingest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"finintel/pkg/domain"
)

// JSONExtractor flattens an arbitrary JSON document (e.g. an XBRL-derived
// facts export, or a structured data feed) into label/value candidates,
// using the path to the leaf as the label. Standard library encoding/json
// is the idiomatic choice here — no pack repo reaches for a third-party
// JSON library for simple decode-and-walk use, reserving
// RealAlexandreAI/json-repair for the distinct job of repairing malformed
// LLM-generated JSON (internal/jsonx).
type JSONExtractor struct{}

var _ Extractor = (*JSONExtractor)(nil)

func (x *JSONExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	var doc any
	if err := json.Unmarshal(fileBytes, &doc); err != nil {
		return IngestResult{}, fmt.Errorf("parse json: %w", err)
	}

	docRef := ref
	docRef.SourceType = domain.SourceTypeJSON
	docRef.ExtractionMethod = "encoding/json"

	var candidates []CandidateMetric
	flattenJSON("", doc, docRef, &candidates)

	return IngestResult{Candidates: candidates}, nil
}

func flattenJSON(path string, v any, ref domain.SourceReference, out *[]CandidateMetric) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			flattenJSON(childPath, val[k], ref, out)
		}
	case []any:
		for i, item := range val {
			flattenJSON(fmt.Sprintf("%s[%d]", path, i), item, ref, out)
		}
	case float64:
		rowRef := ref
		label := path
		rowRef.RowLabel = &label
		*out = append(*out, CandidateMetric{Label: path, RawValue: strconv.FormatFloat(val, 'f', -1, 64), SourceRef: rowRef})
	case string:
		if path != "" {
			rowRef := ref
			label := path
			rowRef.RowLabel = &label
			*out = append(*out, CandidateMetric{Label: path, RawValue: val, SourceRef: rowRef})
		}
	}
}

// XMLExtractor walks a generic XML tree (e.g. a non-HTML filing exhibit)
// the same way JSONExtractor walks JSON: element path as label, character
// data as value. Standard library encoding/xml's token-based Decoder
// handles this without a schema, which is all the candidate-extraction
// stage needs — normalization and labeling happen downstream.
type XMLExtractor struct{}

var _ Extractor = (*XMLExtractor)(nil)

func (x *XMLExtractor) Extract(fileBytes []byte, fileName string, ref domain.SourceReference) (IngestResult, error) {
	docRef := ref
	docRef.SourceType = domain.SourceTypeXML
	docRef.ExtractionMethod = "encoding/xml"

	decoder := xml.NewDecoder(strings.NewReader(string(fileBytes)))
	var path []string
	var candidates []CandidateMetric
	var textBuf strings.Builder

	flush := func() {
		text := strings.TrimSpace(textBuf.String())
		textBuf.Reset()
		if text == "" || len(path) == 0 {
			return
		}
		label := strings.Join(path, ".")
		rowRef := docRef
		rowRef.RowLabel = &label
		candidates = append(candidates, CandidateMetric{Label: label, RawValue: text, SourceRef: rowRef})
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			textBuf.Reset()
		case xml.CharData:
			textBuf.Write(t)
		case xml.EndElement:
			flush()
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		}
	}

	return IngestResult{Candidates: candidates}, nil
}
