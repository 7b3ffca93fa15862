package orchestrator

import (
	"context"
	"testing"

	"finintel/pkg/domain"
	"finintel/pkg/ontology"
)

const classifyTestOntologyYAML = `
metrics:
  - id: ricavi
    display_name: Ricavi
    domain: finance-pl
    unit_kind: currency
    synonyms: ["ricavi netti", "fatturato"]
  - id: ebitda
    display_name: EBITDA
    domain: finance-pl
    unit_kind: currency
    synonyms: ["margine operativo lordo"]
`

func testClassifierOntology(t *testing.T) *ontology.Ontology {
	t.Helper()
	ont, err := ontology.LoadFromBytes([]byte(classifyTestOntologyYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	return ont
}

func TestClassifyRecognizesSingleMetricLookup(t *testing.T) {
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), nil, nil)
	cls := c.Classify(context.Background(), "Quali sono i ricavi netti del FY2024?")

	if cls.Kind != domain.QuestionMetricLookup {
		t.Fatalf("expected metric_lookup, got %s", cls.Kind)
	}
	if len(cls.MetricIDs) != 1 || cls.MetricIDs[0] != "ricavi" {
		t.Fatalf("expected [ricavi], got %+v", cls.MetricIDs)
	}
	if cls.Period == nil || cls.Period.Year != 2024 {
		t.Fatalf("expected FY2024 to be extracted, got %+v", cls.Period)
	}
}

func TestClassifyDetectsComparisonFromMarkerPhrase(t *testing.T) {
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), nil, nil)
	cls := c.Classify(context.Background(), "Come sono variati i ricavi rispetto a fatturato dell'anno precedente?")

	if cls.Kind != domain.QuestionComparison {
		t.Fatalf("expected comparison, got %s", cls.Kind)
	}
}

func TestClassifyDetectsComparisonFromMultipleMetrics(t *testing.T) {
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), nil, nil)
	cls := c.Classify(context.Background(), "Confronta fatturato e margine operativo lordo")

	if cls.Kind != domain.QuestionComparison {
		t.Fatalf("expected comparison from multi-metric hit, got %s", cls.Kind)
	}
	if len(cls.MetricIDs) != 2 {
		t.Fatalf("expected both metrics to be extracted, got %+v", cls.MetricIDs)
	}
}

func TestClassifyDetectsNarrativeFromMarkerPhrase(t *testing.T) {
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), nil, nil)
	cls := c.Classify(context.Background(), "Perché sono diminuiti i ricavi nel 2024?")

	if cls.Kind != domain.QuestionNarrative {
		t.Fatalf("expected narrative, got %s", cls.Kind)
	}
}

func TestClassifyFallsBackToProviderWhenAmbiguous(t *testing.T) {
	provider := &fakeLLMProvider{response: `{"kind": "hybrid"}`}
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), provider, nil)
	cls := c.Classify(context.Background(), "Raccontami la situazione generale dell'azienda")

	if cls.Kind != domain.QuestionHybrid {
		t.Fatalf("expected provider-classified hybrid, got %s", cls.Kind)
	}
}

func TestClassifyDefaultsToNarrativeWhenProviderUnconfigured(t *testing.T) {
	c := NewClassifier(testClassifierOntology(t), domain.DefaultFiscalCalendar(), nil, nil)
	cls := c.Classify(context.Background(), "Raccontami la situazione generale dell'azienda")

	if cls.Kind != domain.QuestionNarrative {
		t.Fatalf("expected narrative fallback with no provider configured, got %s", cls.Kind)
	}
}
