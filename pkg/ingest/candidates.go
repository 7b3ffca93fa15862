package ingest

import "strings"

// DedupeCandidates removes exact (label, raw value, source reference)
// duplicates that arise when a table scan and a narrative label-near-number
// scan both pick up the same line of a PDF/HTML document (a single-cell
// table row is legal HTML and also matches the narrative pattern). Distinct
// source references are always kept — provenance makes two otherwise-equal
// candidates meaningfully different facts if they truly come from two
// places in the document.
func DedupeCandidates(candidates []CandidateMetric) []CandidateMetric {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]CandidateMetric, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Label)) + "\x00" +
			strings.TrimSpace(c.RawValue) + "\x00" + c.SourceRef.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
