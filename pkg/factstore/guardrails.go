package factstore

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"

	"finintel/pkg/domain"
)

// GuardrailRule is one YAML-configured validation rule. Rules are
// configuration-driven so adding one does not require code changes to the
// evaluator (spec.md §4.4). Two shapes exist: "equality" compares one
// metric against a formula over other metrics within a relative tolerance
// (balance sheet, PFN, margin coherence); "range" checks a metric's value
// against [Min, Max].
type GuardrailRule struct {
	ID           string  `yaml:"id"`
	Type         string  `yaml:"type"` // equality | range
	Severity     string  `yaml:"severity"` // error | warning | info
	Flag         string  `yaml:"flag"`
	LHS          string  `yaml:"lhs"`
	RHSFormula   string  `yaml:"rhs_formula"`
	TolerancePct float64 `yaml:"tolerance_pct"`
	Metric       string  `yaml:"metric"`
	UnitKind     string  `yaml:"unit_kind"`
	Min          *float64 `yaml:"min"`
	Max          *float64 `yaml:"max"`
	NonNegative  bool    `yaml:"non_negative"`
}

type guardrailFile struct {
	Rules []GuardrailRule `yaml:"rules"`
}

// GuardrailSet is the loaded, immutable rule set evaluated after every
// write, the way Ontology is loaded once and reused for every request.
type GuardrailSet struct {
	rules []GuardrailRule
}

func LoadGuardrails(path string) (*GuardrailSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("factstore: reading guardrails %s: %w", path, err)
	}
	return LoadGuardrailsFromBytes(data)
}

func LoadGuardrailsFromBytes(data []byte) (*GuardrailSet, error) {
	var raw guardrailFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("factstore: parsing guardrails: %w", err)
	}
	for _, r := range raw.Rules {
		if r.Severity != "error" && r.Severity != "warning" && r.Severity != "info" {
			return nil, fmt.Errorf("factstore: guardrail %q has invalid severity %q", r.ID, r.Severity)
		}
	}
	return &GuardrailSet{rules: raw.Rules}, nil
}

// Evaluate runs every configured rule against facts, a set of facts sharing
// one (entity_id, period_key, scenario, perimeter) coordinate, keyed by
// metric id. It returns the quality flags produced, keyed by the metric id
// they attach to.
func (g *GuardrailSet) Evaluate(facts map[string]domain.Fact) map[string][]domain.QualityFlag {
	flags := make(map[string][]domain.QualityFlag)
	values := make(map[string]float64, len(facts))
	for id, f := range facts {
		values[id] = f.Value
	}

	for _, rule := range g.rules {
		switch rule.Type {
		case "equality":
			g.evaluateEquality(rule, facts, values, flags)
		case "range":
			g.evaluateRange(rule, facts, flags)
		}
	}
	return flags
}

func (g *GuardrailSet) evaluateEquality(rule GuardrailRule, facts map[string]domain.Fact, values map[string]float64, flags map[string][]domain.QualityFlag) {
	lhsFact, ok := facts[rule.LHS]
	if !ok {
		return
	}
	rhsValue, err := evaluateFormula(rule.RHSFormula, values)
	if err != nil {
		// Missing an input on the right-hand side means the rule simply
		// cannot run yet; that is not itself a violation.
		return
	}

	tolerance := rule.TolerancePct
	if tolerance == 0 {
		tolerance = 1.0
	}
	scale := math.Max(math.Abs(lhsFact.Value), math.Abs(rhsValue))
	diff := math.Abs(lhsFact.Value - rhsValue)
	withinTolerance := scale == 0 || diff/scale*100 <= tolerance

	if !withinTolerance {
		flag := domain.QualityFlag{
			RuleID:   rule.ID,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("%s=%.2f does not reconcile with %s=%.2f (tolerance %.1f%%)", rule.LHS, lhsFact.Value, rule.RHSFormula, rhsValue, tolerance),
		}
		if rule.Flag != "" {
			flag.RuleID = rule.Flag
		}
		flags[rule.LHS] = append(flags[rule.LHS], flag)
		for _, metricID := range formulaMetricIDs(rule.RHSFormula, values) {
			flags[metricID] = append(flags[metricID], flag)
		}
	}
}

// formulaMetricIDs returns the metric ids a formula actually references,
// i.e. the tokens that resolve against values rather than being operators
// or numeric literals. An equality rule's mismatch is not just the LHS's
// problem — every metric on the RHS is equally implicated (spec.md §4.4).
func formulaMetricIDs(formula string, values map[string]float64) []string {
	var ids []string
	for _, tok := range tokenizeFormula(formula) {
		if _, ok := values[tok]; ok {
			ids = append(ids, tok)
		}
	}
	return ids
}

func (g *GuardrailSet) evaluateRange(rule GuardrailRule, facts map[string]domain.Fact, flags map[string][]domain.QualityFlag) {
	fact, ok := facts[rule.Metric]
	if !ok {
		return
	}
	violated := false
	if rule.Min != nil && fact.Value < *rule.Min {
		violated = true
	}
	if rule.Max != nil && fact.Value > *rule.Max {
		violated = true
	}
	if rule.NonNegative && fact.Value < 0 {
		violated = true
	}
	if violated {
		flag := domain.QualityFlag{
			RuleID:   rule.ID,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("%s=%.4f falls outside its configured range", rule.Metric, fact.Value),
		}
		if rule.Flag != "" {
			flag.RuleID = rule.Flag
		}
		flags[rule.Metric] = append(flags[rule.Metric], flag)
	}
}

// CheckDimensionalIncoherence implements spec.md §4.4's "same-period,
// same-perimeter" rule: derived facts must have all inputs sharing period
// and perimeter, otherwise derivation is rejected and a
// dimensional_incoherence flag is emitted rather than a computed value.
func CheckDimensionalIncoherence(inputs []domain.Fact, expectedPeriod domain.PeriodKey, expectedPerimeter domain.Perimeter) *domain.QualityFlag {
	for _, in := range inputs {
		if in.PeriodKey != expectedPeriod || in.Perimeter != expectedPerimeter {
			return &domain.QualityFlag{
				RuleID:   "dimensional_incoherence",
				Severity: "error",
				Message:  fmt.Sprintf("input %s has period/perimeter %s/%s, expected %s/%s", in.MetricID, in.PeriodKey, in.Perimeter, expectedPeriod, expectedPerimeter),
			}
		}
	}
	return nil
}
