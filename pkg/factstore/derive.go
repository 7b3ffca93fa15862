package factstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"finintel/pkg/domain"
	"finintel/pkg/ontology"
)

// DerivationEngine computes derived metrics after a write touches their
// inputs, per spec.md §4.4: "after every write affecting its inputs,
// attempt to compute the derivation iff all inputs are present with the
// same (entity_id, period_key, scenario, perimeter)". Dependency order
// comes from ontology.Ontology.DerivedOrder, which already rejects cycles
// at load time.
type DerivationEngine struct {
	ontology *ontology.Ontology
}

func NewDerivationEngine(ont *ontology.Ontology) *DerivationEngine {
	return &DerivationEngine{ontology: ont}
}

// Recompute walks the ontology's derived-metric topological order and
// attempts to (re)compute every derived metric for (entityID, periodKey,
// scenario, perimeter) given the currently available facts. Facts already
// present for a derived metric's inputs are looked up in `current`, which
// the caller seeds with every authoritative fact sharing the same
// dimensional coordinates (including previously derived ones, so a
// multi-level derivation chain resolves in one pass).
func (e *DerivationEngine) Recompute(
	tenantID, entityID string,
	periodKey domain.PeriodKey,
	scenario domain.Scenario,
	perimeter domain.Perimeter,
	current map[string]domain.Fact,
) []domain.Fact {
	var derived []domain.Fact

	for _, metricID := range e.ontology.DerivedOrder() {
		metric, ok := e.ontology.Metric(metricID)
		if !ok || !metric.IsDerived() {
			continue
		}

		inputs := make(map[string]float64, len(metric.DerivableFrom.Inputs))
		var calculatedFrom []domain.CalculatedFromEntry
		complete := true
		for _, inputID := range metric.DerivableFrom.Inputs {
			inputFact, ok := current[inputID]
			if !ok {
				complete = false
				break
			}
			inputs[inputID] = inputFact.Value
			calculatedFrom = append(calculatedFrom, domain.CalculatedFromEntry{
				MetricID:  inputID,
				SourceRef: inputFact.SourceRef,
			})
		}
		if !complete {
			continue
		}

		value, evalErr := evaluateFormula(metric.DerivableFrom.Formula, inputs)
		fact := domain.Fact{
			TenantID:   tenantID,
			EntityID:   entityID,
			MetricID:   metricID,
			Unit:       metric.UnitKind,
			PeriodKey:  periodKey,
			Scenario:   scenario,
			Perimeter:  perimeter,
			CalculatedFrom: calculatedFrom,
			Formula:    metric.DerivableFrom.Formula,
			SourceRef: domain.SourceReference{
				SourceType:       domain.SourceTypeCalculated,
				ExtractionMethod: fmt.Sprintf("%s|formula:%s|inputs:[%s]", metricID, strings.ReplaceAll(metric.DerivableFrom.Formula, " ", ""), strings.Join(metric.DerivableFrom.Inputs, ",")),
				ExtractedAt:      time.Now(),
				Confidence:       minConfidence(calculatedFrom),
			},
			Authoritative: true,
		}

		if evalErr != nil {
			fact.QualityFlags = []domain.QualityFlag{{
				RuleID:   "derivation_undefined",
				Severity: "warning",
				Message:  evalErr.Error(),
			}}
		} else {
			fact.Value = value
		}

		derived = append(derived, fact)
		// Make this derived fact visible to later entries in DerivedOrder
		// (a metric can itself be an input to another derived metric).
		current[metricID] = fact
	}

	return derived
}

func minConfidence(inputs []domain.CalculatedFromEntry) float64 {
	if len(inputs) == 0 {
		return 1.0
	}
	min := inputs[0].SourceRef.Confidence
	for _, in := range inputs[1:] {
		if in.SourceRef.Confidence < min {
			min = in.SourceRef.Confidence
		}
	}
	return min
}

// evaluateFormula evaluates spec.md §6's restricted grammar: identifiers
// (metric ids, resolved via values), the four arithmetic operators, and
// parentheses. No expression-evaluation library in the corpus is used for
// anything beyond a transitive, unexercised manifest dependency, and the
// grammar is narrow enough that a small recursive-descent parser is the
// idiomatic choice over adding a general-purpose expression engine for
// four operators. Division by zero returns an error so the caller can set
// quality_flags={undefined} per spec.md §4.4, rather than producing Inf/NaN.
func evaluateFormula(formula string, values map[string]float64) (float64, error) {
	p := &formulaParser{tokens: tokenizeFormula(formula), values: values}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("unexpected trailing input in formula %q", formula)
	}
	return v, nil
}

type formulaParser struct {
	tokens []string
	pos    int
	values map[string]float64
}

func tokenizeFormula(formula string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range formula {
		switch {
		case r == ' ' || r == '\t':
			flush()
		case strings.ContainsRune("+-*/()", r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func (p *formulaParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *formulaParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// parseExpr handles + and - at the lowest precedence.
func (p *formulaParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for p.peek() == "+" || p.peek() == "-" {
		op := p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			v += rhs
		} else {
			v -= rhs
		}
	}
	return v, nil
}

// parseTerm handles * and / at higher precedence than parseExpr.
func (p *formulaParser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for p.peek() == "*" || p.peek() == "/" {
		op := p.next()
		rhs, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			v *= rhs
		} else {
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero evaluating formula")
			}
			v /= rhs
		}
	}
	return v, nil
}

func (p *formulaParser) parseFactor() (float64, error) {
	tok := p.peek()
	switch {
	case tok == "(":
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.next() != ")" {
			return 0, fmt.Errorf("unbalanced parentheses in formula")
		}
		return v, nil
	case tok == "-":
		p.next()
		v, err := p.parseFactor()
		return -v, err
	case tok == "":
		return 0, fmt.Errorf("unexpected end of formula")
	default:
		p.next()
		if v, ok := p.values[tok]; ok {
			return v, nil
		}
		if n, err := strconv.ParseFloat(tok, 64); err == nil {
			return n, nil
		}
		return 0, fmt.Errorf("unresolved identifier %q in formula", tok)
	}
}
