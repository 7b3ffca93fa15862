package factstore

import (
	"sort"
	"strings"

	"finintel/pkg/domain"
)

// electionWeights mirror spec.md §4.4's four criteria, applied in order
// with weights summed: recency 0.4, specificity 0.3, source quality 0.2,
// confidence 0.1.
const (
	weightRecency      = 0.4
	weightSpecificity  = 0.3
	weightSourceQuality = 0.2
	weightConfidence   = 0.1
)

// specificityRank orders source types from narrowest to broadest scope, per
// spec.md §4.4: "cell in a prospectus table > line in narrative paragraph >
// OCR'd footnote". Calculated facts sit above OCR since they are derived
// from already-resolved inputs, not a raw scan.
func specificityRank(t domain.SourceType) float64 {
	switch t {
	case domain.SourceTypeExcel, domain.SourceTypeCSV:
		return 1.0
	case domain.SourceTypePDFNative, domain.SourceTypeHTML, domain.SourceTypeXML, domain.SourceTypeJSON, domain.SourceTypeDocx:
		return 0.66
	case domain.SourceTypeCalculated:
		return 0.5
	case domain.SourceTypePDFScanned:
		return 0.33
	default:
		return 0.0
	}
}

// sourceQualityRank orders extraction methods: native table > native text >
// OCR > inferred/calculated (spec.md §4.4).
func sourceQualityRank(method string) float64 {
	switch {
	case strings.Contains(method, "table"):
		return 1.0
	case strings.Contains(method, "text") || strings.Contains(method, "narrative"):
		return 0.75
	case strings.Contains(method, "ocr"):
		return 0.5
	default:
		return 0.25
	}
}

// electionScore computes a fact's composite election score relative to the
// oldest and newest extraction timestamps in its candidate set, so recency
// is normalized within the competing set rather than against an arbitrary
// absolute scale.
func electionScore(f domain.Fact, oldest, newest int64) float64 {
	recency := 1.0
	if newest > oldest {
		recency = float64(f.SourceRef.ExtractedAt.Unix()-oldest) / float64(newest-oldest)
	}
	specificity := specificityRank(f.SourceRef.SourceType)
	quality := sourceQualityRank(f.SourceRef.ExtractionMethod)
	confidence := f.SourceRef.Confidence

	return weightRecency*recency +
		weightSpecificity*specificity +
		weightSourceQuality*quality +
		weightConfidence*confidence
}

// ElectAuthoritative picks the authoritative fact among candidates sharing
// one dedup key, breaking ties deterministically by source_ref string
// order (spec.md §4.4). candidates must be non-empty.
func ElectAuthoritative(candidates []domain.Fact) domain.Fact {
	if len(candidates) == 1 {
		return candidates[0]
	}

	oldest, newest := candidates[0].SourceRef.ExtractedAt.Unix(), candidates[0].SourceRef.ExtractedAt.Unix()
	for _, c := range candidates[1:] {
		t := c.SourceRef.ExtractedAt.Unix()
		if t < oldest {
			oldest = t
		}
		if t > newest {
			newest = t
		}
	}

	type scored struct {
		fact  domain.Fact
		score float64
	}
	scoredCandidates := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredCandidates[i] = scored{fact: c, score: electionScore(c, oldest, newest)}
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		if scoredCandidates[i].score == scoredCandidates[j].score {
			return scoredCandidates[i].fact.SourceRef.String() < scoredCandidates[j].fact.SourceRef.String()
		}
		return scoredCandidates[i].score > scoredCandidates[j].score
	})
	return scoredCandidates[0].fact
}
