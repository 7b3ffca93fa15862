// Package domain holds the value objects and entities shared by every
// component of finintel: source provenance, canonical metrics, facts,
// periods, retrieval chunks, documents, and the per-request user context.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceType identifies the kind of artifact a SourceReference points into.
type SourceType string

const (
	SourceTypePDFNative  SourceType = "pdf-native"
	SourceTypePDFScanned SourceType = "pdf-scanned"
	SourceTypeExcel      SourceType = "excel"
	SourceTypeCSV        SourceType = "csv"
	SourceTypeDocx       SourceType = "docx"
	SourceTypeHTML       SourceType = "html"
	SourceTypeJSON       SourceType = "json"
	SourceTypeXML        SourceType = "xml"
	SourceTypeCalculated SourceType = "calculated"
)

// BBox is a PDF bounding box in page coordinates.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// SourceReference is an immutable pointer at the exact coordinates a datum
// was extracted from. It is created once at extraction time and carried,
// unmodified, through every downstream transformation — normalization,
// ontology mapping, guardrail evaluation, fact storage.
type SourceReference struct {
	FileName         string
	FileHash         string
	SourceType       SourceType
	Page             *int
	Sheet            *string
	Cell             *string
	RowLabel         *string
	ColumnLabel      *string
	TableIndex       *int
	BBox             *BBox
	ExtractionMethod string
	ExtractedAt      time.Time
	Confidence       float64
}

// String renders the canonical provenance form described in spec.md §3:
//
//	«file»|sheet:«s»|cell:«ref»   for spreadsheet cells
//	«file»|p.«n»|tab:«i»|row:«label»  for PDF/HTML table rows
//	«file»|p.«n»                 for narrative text
//	calculated/«metric»|formula:«f»|inputs:[...] for derived facts
func (r SourceReference) String() string {
	if r.SourceType == SourceTypeCalculated {
		return fmt.Sprintf("calculated/%s", r.ExtractionMethod)
	}
	if r.Sheet != nil && r.Cell != nil {
		return fmt.Sprintf("%s|sheet:%s|cell:%s", r.FileName, *r.Sheet, *r.Cell)
	}
	if r.Page != nil && r.TableIndex != nil && r.RowLabel != nil {
		return fmt.Sprintf("%s|p.%d|tab:%d|row:%s", r.FileName, *r.Page, *r.TableIndex, *r.RowLabel)
	}
	if r.Page != nil {
		return fmt.Sprintf("%s|p.%d", r.FileName, *r.Page)
	}
	return r.FileName
}

// ParseSourceReference is the inverse of String for the spreadsheet- and
// PDF-table forms; it exists so provenance strings persisted elsewhere
// (e.g. in a quality-flag message, or a derived fact's calculated_from
// citation) can be resolved back to structured coordinates without ad-hoc
// string splitting at each call site (spec.md §9: "ad-hoc string parsing of
// provenance" is exactly the anti-pattern this formalizes against).
func ParseSourceReference(s string) (SourceReference, error) {
	if strings.HasPrefix(s, "calculated/") {
		return SourceReference{
			SourceType:       SourceTypeCalculated,
			ExtractionMethod: strings.TrimPrefix(s, "calculated/"),
		}, nil
	}
	parts := strings.Split(s, "|")
	if len(parts) == 0 || parts[0] == "" {
		return SourceReference{}, fmt.Errorf("invalid source reference: %q", s)
	}
	ref := SourceReference{FileName: parts[0]}
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "p.") {
			n, err := strconv.Atoi(strings.TrimPrefix(part, "p."))
			if err != nil {
				return SourceReference{}, fmt.Errorf("invalid page in source reference: %q", part)
			}
			ref.Page = &n
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return SourceReference{}, fmt.Errorf("invalid source reference segment: %q", part)
		}
		key, val := kv[0], kv[1]
		switch key {
		case "sheet":
			v := val
			ref.Sheet = &v
		case "cell":
			v := val
			ref.Cell = &v
		case "tab":
			n, err := strconv.Atoi(val)
			if err != nil {
				return SourceReference{}, fmt.Errorf("invalid table index in source reference: %q", val)
			}
			ref.TableIndex = &n
		case "row":
			v := val
			ref.RowLabel = &v
		default:
			return SourceReference{}, fmt.Errorf("unknown source reference segment key: %q", key)
		}
	}
	return ref, nil
}
