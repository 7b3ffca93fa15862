package ontology

import "strings"

const (
	fuzzyAcceptThreshold   = 0.82
	ambiguityMarginAcross  = 0.03
)

// candidateScore is an intermediate result before the ambiguity check.
type candidateScore struct {
	metricID string
	domain   string
	synonym  string
	score    float64
}

// Map implements the matching pipeline spec.md §4.2 describes: normalize,
// exact match, then fuzzy match with an ambiguity guard, with an exclusion
// list checked first so section headers never get force-mapped.
func (o *Ontology) Map(rawLabel string, domainHint string) (MetricMatch, bool) {
	normalized := normalizeLabel(rawLabel)
	if normalized == "" {
		return MetricMatch{}, false
	}
	if o.IsExcluded(rawLabel) {
		return MetricMatch{}, false
	}

	// Exact match against any synonym of any metric.
	for _, id := range o.order {
		m := o.metrics[id]
		for _, syn := range m.Synonyms {
			if normalizeLabel(syn) == normalized {
				return MetricMatch{MetricID: id, Confidence: 1.0, ViaSynonym: syn}, true
			}
		}
	}

	// Fuzzy match: score every synonym, keep the best per metric.
	var scored []candidateScore
	for _, id := range o.order {
		m := o.metrics[id]
		best := candidateScore{metricID: id, domain: string(m.Domain)}
		for _, syn := range m.Synonyms {
			s := similarityRatio(normalized, normalizeLabel(syn))
			if s > best.score {
				best.score = s
				best.synonym = syn
			}
		}
		if best.score > 0 {
			scored = append(scored, best)
		}
	}
	if len(scored) == 0 {
		return MetricMatch{}, false
	}

	// Sort descending by score (small N, insertion sort is adequate and
	// keeps ties in a stable, deterministic order).
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	top := scored[0]
	if top.score < fuzzyAcceptThreshold {
		return MetricMatch{}, false
	}

	if len(scored) > 1 {
		second := scored[1]
		if top.score-second.score < ambiguityMarginAcross && !strings.EqualFold(top.domain, second.domain) {
			if domainHint == "" || !strings.EqualFold(top.domain, domainHint) {
				return MetricMatch{}, false // OntologyAmbiguous at the caller
			}
		}
	}

	return MetricMatch{MetricID: top.metricID, Confidence: top.score, ViaSynonym: top.synonym}, true
}

// RowMapping is one row's mapping result within a batch (spec.md §4.2
// "batch mapping").
type RowMapping struct {
	RowIndex   int
	MetricID   string
	Confidence float64
}

// MapBatch maps every row label in a table, in order, skipping rows that
// don't map to any metric.
func (o *Ontology) MapBatch(rowLabels []string, domainHint string) []RowMapping {
	var out []RowMapping
	for i, label := range rowLabels {
		if match, ok := o.Map(label, domainHint); ok {
			out = append(out, RowMapping{RowIndex: i, MetricID: match.MetricID, Confidence: match.Confidence})
		}
	}
	return out
}
