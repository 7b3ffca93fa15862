// Package ontology loads the canonical metric vocabulary and maps free-text
// labels onto it via exact and fuzzy synonym matching.
package ontology

import "finintel/pkg/domain"

// yamlFile is the on-disk shape of the ontology file (spec.md §6).
type yamlFile struct {
	Metrics []yamlMetric `yaml:"metrics"`
}

type yamlBounds struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type yamlDerivation struct {
	Inputs  []string `yaml:"inputs"`
	Formula string   `yaml:"formula"`
}

type yamlMetric struct {
	ID            string          `yaml:"id"`
	DisplayName   string          `yaml:"display_name"`
	Domain        string          `yaml:"domain"`
	UnitKind      string          `yaml:"unit_kind"`
	Synonyms      []string        `yaml:"synonyms"`
	Bounds        *yamlBounds     `yaml:"bounds"`
	DerivableFrom *yamlDerivation `yaml:"derivable_from"`
	Exclusion     bool            `yaml:"exclusion"`
}

func (m yamlMetric) toDomain() domain.CanonicalMetric {
	cm := domain.CanonicalMetric{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Domain:      domain.Domain(m.Domain),
		UnitKind:    domain.UnitKind(m.UnitKind),
		Synonyms:    m.Synonyms,
	}
	if m.Bounds != nil {
		cm.Bounds = &domain.Bounds{Min: m.Bounds.Min, Max: m.Bounds.Max}
	}
	if m.DerivableFrom != nil {
		cm.DerivableFrom = &domain.DerivationSpec{
			Inputs:  m.DerivableFrom.Inputs,
			Formula: m.DerivableFrom.Formula,
		}
	}
	return cm
}

// MetricMatch is the outcome of mapping a free-text label onto the
// ontology: either a confident hit or, below threshold, nothing.
type MetricMatch struct {
	MetricID   string
	Confidence float64
	ViaSynonym string
}
