package domain

import "time"

// QuestionKind is the Classify stage's outcome (spec.md §4.5 step 1),
// controlling which later stages run.
type QuestionKind string

const (
	QuestionMetricLookup QuestionKind = "metric_lookup"
	QuestionComparison   QuestionKind = "comparison"
	QuestionNarrative    QuestionKind = "narrative"
	QuestionHybrid       QuestionKind = "hybrid"
)

// AnswerOptions narrows an answer call: an explicit entity/period override
// beyond what Classify infers from the question text, and a deadline the
// orchestrator's cancellation checks observe between sub-steps.
type AnswerOptions struct {
	EntityID *string
	Deadline time.Time
}

// Citation points a single numeric claim in the composed answer back at the
// fact (or calculated fact) it came from, in the canonical source_ref
// string form spec.md §4.5 step 6 requires.
type Citation struct {
	MetricID  string
	Value     float64
	SourceRef string
	Masked    bool
}

// ProcessingStats reports what actually ran for one answer call, so a
// degraded path (missing dense index, skipped rerank, failed persist) is
// visible to the caller rather than silently absorbed.
type ProcessingStats struct {
	Kind            QuestionKind
	ChunksRetrieved int
	FactsExtracted  int
	FactsPersisted  int
	Duration        time.Duration
}

// Answer is the Query Orchestrator's contract result (spec.md §4.5):
// `answer(question, user_ctx, options) → Answer{text, citations[],
// metrics[], warnings[], processing_stats}`.
type Answer struct {
	Text            string
	Citations       []Citation
	Metrics         []Fact
	Warnings        []string
	ProcessingStats ProcessingStats
}
