package ontology

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"finintel/pkg/domain"
)

// Ontology is the immutable, in-memory metric vocabulary, loaded once at
// startup (spec.md §5: "loaded once, immutable until explicit reload").
type Ontology struct {
	metrics      map[string]domain.CanonicalMetric
	order        []string
	exclusions   map[string]struct{}
	derivedOrder []string // topologically sorted derived metric ids
}

// Load reads and validates an ontology YAML file. Validation rejects
// cyclic derivations at load time, per spec.md §4.4.
func Load(path string) (*Ontology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ontology: reading %s: %w", path, err)
	}
	var raw yamlFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ontology: parsing %s: %w", path, err)
	}
	return build(raw)
}

// LoadFromBytes is the byte-slice variant of Load, used by tests and by
// callers that embed the ontology rather than reading it from disk.
func LoadFromBytes(data []byte) (*Ontology, error) {
	var raw yamlFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ontology: parsing bytes: %w", err)
	}
	return build(raw)
}

func build(raw yamlFile) (*Ontology, error) {
	o := &Ontology{
		metrics:    make(map[string]domain.CanonicalMetric, len(raw.Metrics)),
		exclusions: make(map[string]struct{}),
	}
	for _, m := range raw.Metrics {
		if m.Exclusion {
			o.exclusions[normalizeLabel(m.DisplayName)] = struct{}{}
			for _, syn := range m.Synonyms {
				o.exclusions[normalizeLabel(syn)] = struct{}{}
			}
			continue
		}
		if _, exists := o.metrics[m.ID]; exists {
			return nil, fmt.Errorf("ontology: duplicate metric id %q", m.ID)
		}
		o.metrics[m.ID] = m.toDomain()
		o.order = append(o.order, m.ID)
	}

	derivedOrder, err := topoSortDerived(o.metrics)
	if err != nil {
		return nil, err
	}
	o.derivedOrder = derivedOrder
	return o, nil
}

// topoSortDerived orders derived metrics so every metric's inputs are
// resolved before it, and rejects cycles (spec.md §4.4: "cycles are
// rejected at ontology load time").
func topoSortDerived(metrics map[string]domain.CanonicalMetric) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int)
	var order []string

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("ontology: cyclic derivation detected: %s -> %s", strings.Join(path, " -> "), id)
		}
		m, ok := metrics[id]
		if !ok || !m.IsDerived() {
			state[id] = black
			return nil
		}
		state[id] = gray
		for _, input := range m.DerivableFrom.Inputs {
			if err := visit(input, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = black
		order = append(order, id)
		return nil
	}

	ids := make([]string, 0, len(metrics))
	for id := range metrics {
		ids = append(ids, id)
	}
	// Deterministic iteration order so load-time errors are reproducible.
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Metric looks up a canonical metric by id.
func (o *Ontology) Metric(id string) (domain.CanonicalMetric, bool) {
	m, ok := o.metrics[id]
	return m, ok
}

// DerivedOrder returns derived-metric ids in dependency order: every
// metric's inputs appear before it.
func (o *Ontology) DerivedOrder() []string {
	return append([]string(nil), o.derivedOrder...)
}

// IsExcluded reports whether label is a known section-header / subtotal
// string that must never map to a metric on its own (spec.md §4.2 step 4).
func (o *Ontology) IsExcluded(label string) bool {
	_, ok := o.exclusions[normalizeLabel(label)]
	return ok
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
		case strings.ContainsRune(".,;:!?()[]{}\"'", r):
			// punctuation dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
