package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scenario distinguishes actual results from planning figures.
type Scenario string

const (
	ScenarioActual      Scenario = "actual"
	ScenarioBudget      Scenario = "budget"
	ScenarioForecast    Scenario = "forecast"
	ScenarioUnspecified Scenario = "unspecified"
)

// Perimeter is the reporting scope a figure was produced under.
type Perimeter string

const (
	PerimeterStatutory   Perimeter = "statutory"
	PerimeterConsolidated Perimeter = "consolidated"
	PerimeterManagement  Perimeter = "management"
	PerimeterUnspecified Perimeter = "unspecified"
)

// ClassificationLevel orders facts by sensitivity for row-level masking.
type ClassificationLevel int

const (
	ClassificationPublic ClassificationLevel = iota
	ClassificationInternal
	ClassificationConfidential
	ClassificationRestricted
)

func (c ClassificationLevel) String() string {
	switch c {
	case ClassificationPublic:
		return "public"
	case ClassificationInternal:
		return "internal"
	case ClassificationConfidential:
		return "confidential"
	case ClassificationRestricted:
		return "restricted"
	default:
		return "unspecified"
	}
}

// QualityFlag is a validator result attached to a fact by the guardrail
// engine (spec.md §4.4/§9: structured result values replace exceptions as
// the control-flow mechanism for validation failures).
type QualityFlag struct {
	RuleID   string
	Severity string // error | warning | info
	Message  string
}

// CalculatedFromEntry cites one input fact behind a derived fact's value.
type CalculatedFromEntry struct {
	MetricID  string
	SourceRef SourceReference
}

// Fact is the central entity: a single measured value for a metric, period,
// scenario, and perimeter, with full provenance.
type Fact struct {
	ID                  string
	TenantID             string
	EntityID             string
	DocumentID           string // empty for purely calculated facts
	MetricID             string
	Value                float64
	Unit                 UnitKind
	Currency             *string
	PeriodKey            PeriodKey
	Scenario             Scenario
	Perimeter            Perimeter
	Dimensions           map[string]string
	SourceRef            SourceReference
	CalculatedFrom       []CalculatedFromEntry
	Formula              string
	QualityFlags         []QualityFlag
	ClassificationLevel  ClassificationLevel
	CreatedAt            time.Time
	Authoritative        bool
}

// DimensionsHash is the deterministic digest of the sparse dimensions map
// used as part of the dedup key, so that {"region":"IT","channel":"retail"}
// and {"channel":"retail","region":"IT"} hash identically.
func DimensionsHash(dims map[string]string) string {
	if len(dims) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(dims[k])
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// DedupKey is the logical identity described in spec.md §3: exactly one
// fact per (tenant, entity, metric, period, scenario, perimeter, dims) may
// be authoritative at a time.
type DedupKey struct {
	TenantID        string
	EntityID        string
	MetricID        string
	PeriodKey       PeriodKey
	Scenario        Scenario
	Perimeter       Perimeter
	DimensionsHash  string
}

func (f Fact) DedupKey() DedupKey {
	return DedupKey{
		TenantID:       f.TenantID,
		EntityID:       f.EntityID,
		MetricID:       f.MetricID,
		PeriodKey:      f.PeriodKey,
		Scenario:       f.Scenario,
		Perimeter:      f.Perimeter,
		DimensionsHash: DimensionsHash(f.Dimensions),
	}
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		k.TenantID, k.EntityID, k.MetricID, k.PeriodKey, k.Scenario, k.Perimeter, k.DimensionsHash)
}
