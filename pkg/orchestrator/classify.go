package orchestrator

import (
	"context"
	"strings"

	"finintel/internal/jsonx"
	"finintel/internal/obslog"
	"finintel/pkg/domain"
	"finintel/pkg/llm"
	"finintel/pkg/normalize"
	"finintel/pkg/ontology"
)

// Classification is stage 1's outcome: the question kind plus whatever
// metric ids and period the question's own text resolved to, used to seed
// retrieval filters and decide which later stages run.
type Classification struct {
	Kind      domain.QuestionKind
	MetricIDs []string
	Period    *domain.PeriodKey
}

// comparisonMarkers and narrativeMarkers are the lightweight rule layer
// spec.md §4.5 step 1 calls for ("a lightweight rule/LLM classifier") —
// grounded on pkg/core/fee/semantic_layer.go's constrained-choice style:
// the LLM is reserved for the genuinely ambiguous case, not every call.
var comparisonMarkers = []string{"rispetto a", "vs", "versus", "confronto", "compared to", "differenza tra", "variazione"}
var narrativeMarkers = []string{"perché", "why", "come mai", "spiega", "explain", "descrivi", "what drove", "cosa ha causato"}

// Classifier decides a question's kind and extracts ontology/period hints
// from its text. An llm.Provider is consulted only when the rule layer
// finds neither a marker phrase nor a metric in the question.
type Classifier struct {
	ontology *ontology.Ontology
	calendar domain.FiscalCalendar
	llm      llm.Provider
	logger   *obslog.Logger
}

func NewClassifier(ont *ontology.Ontology, calendar domain.FiscalCalendar, provider llm.Provider, logger *obslog.Logger) *Classifier {
	return &Classifier{ontology: ont, calendar: calendar, llm: provider, logger: logger}
}

// Classify implements spec.md §4.5 step 1. It never fails: an unresolved
// metric or period simply leaves those fields empty, letting Retrieve fall
// back to an unfiltered query.
func (c *Classifier) Classify(ctx context.Context, question string) Classification {
	cls := Classification{Kind: domain.QuestionMetricLookup}

	if period, err := normalize.Period(question, c.calendar); err == nil {
		cls.Period = &period
	}
	cls.MetricIDs = c.extractMetricIDs(question)

	lower := strings.ToLower(question)
	isComparison := containsAny(lower, comparisonMarkers)
	isNarrative := containsAny(lower, narrativeMarkers)

	switch {
	case isComparison && isNarrative:
		cls.Kind = domain.QuestionHybrid
	case isComparison:
		cls.Kind = domain.QuestionComparison
	case isNarrative:
		cls.Kind = domain.QuestionNarrative
	case len(cls.MetricIDs) > 1:
		cls.Kind = domain.QuestionComparison
	case len(cls.MetricIDs) == 1:
		cls.Kind = domain.QuestionMetricLookup
	default:
		// No metric surfaced by the rule layer and no marker phrase either:
		// ask the configured provider to classify it, degrading to
		// narrative (the safest fallback — always retrieves and composes
		// from chunks rather than assuming a direct fact lookup applies)
		// if no provider is configured or the call fails.
		cls.Kind = c.classifyWithProvider(ctx, question)
	}
	return cls
}

// classifyOutput is the structured shape the provider is asked to return,
// validated with jsonx before its Kind field is trusted — a model
// occasionally wraps its answer in prose or drops the field entirely, and
// jsonx.Validate catches both before classifyWithProvider acts on it.
type classifyOutput struct {
	Kind string `json:"kind"`
}

func (c *Classifier) classifyWithProvider(ctx context.Context, question string) domain.QuestionKind {
	if c.llm == nil {
		return domain.QuestionNarrative
	}
	const systemPrompt = `Classify the financial question. Respond with only a JSON object {"kind": "..."} where kind is exactly one of metric_lookup, comparison, narrative, hybrid.`
	resp, err := c.llm.GenerateResponse(ctx, question, systemPrompt, nil)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("classifier provider call failed, defaulting to narrative")
		}
		return domain.QuestionNarrative
	}

	var out classifyOutput
	if err := jsonx.Validate(resp, &out); err != nil {
		if c.logger != nil {
			c.logger.Warn("classifier provider returned an unusable response, defaulting to narrative")
		}
		return domain.QuestionNarrative
	}

	switch strings.TrimSpace(strings.ToLower(out.Kind)) {
	case "metric_lookup":
		return domain.QuestionMetricLookup
	case "comparison":
		return domain.QuestionComparison
	case "hybrid":
		return domain.QuestionHybrid
	default:
		return domain.QuestionNarrative
	}
}

// extractMetricIDs maps every word window (1 to 4 words) in the question
// onto the ontology, keeping unique hits in first-seen order. Small
// questions make the O(n^2) window scan inconsequential.
func (c *Classifier) extractMetricIDs(question string) []string {
	words := strings.Fields(question)
	seen := make(map[string]struct{})
	var ids []string
	for start := range words {
		for length := 1; length <= 4 && start+length <= len(words); length++ {
			candidate := strings.Join(words[start:start+length], " ")
			match, ok := c.ontology.Map(candidate, "")
			if !ok {
				continue
			}
			if _, dup := seen[match.MetricID]; dup {
				continue
			}
			seen[match.MetricID] = struct{}{}
			ids = append(ids, match.MetricID)
		}
	}
	return ids
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
