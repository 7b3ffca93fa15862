// Package factstore is the dimensional, append-only Fact Store spec.md
// §4.4 describes: one facts table keyed by surrogate id that carries the
// entity/metric/period/scenario dimensions as its own columns (there are no
// separate dimension tables), with dedup-key election,
// derived-metric computation, and YAML-configured guardrails. It follows
// the teacher's pkg/core/store package shape (a connection-pool singleton
// plus a thin repository type) but replaces the single JSONB blob table
// with the dimensional schema the spec requires, and supports two
// backends: an embedded sqlite store for single-process deployments and a
// pgx-backed store for concurrent-writer deployments (spec.md §4.4's
// "process isolation" clause).
package factstore

import (
	"context"

	"finintel/pkg/domain"
)

// Predicate narrows a query_facts call. Zero-value fields are unconstrained
// except TenantID, which is always required.
type Predicate struct {
	TenantID   string
	EntityID   *string
	MetricID   *string
	PeriodKey  *domain.PeriodKey
	Scenario   *domain.Scenario
	Perimeter  *domain.Perimeter
	DocumentID *string
}

// FactStore is the contract spec.md §4.4 names: upsert_fact, query_facts,
// resolve_authoritative. Both backends (sqlite, postgres) implement it
// identically from the caller's perspective.
type FactStore interface {
	// UpsertFact inserts a new fact row, preserving history, and re-elects
	// the authoritative fact for its dedup key. Returns the new fact's id.
	UpsertFact(ctx context.Context, fact domain.Fact) (string, error)

	// QueryFacts returns authoritative facts matching predicate, after
	// pkg/access's row-level filtering has been applied by the caller.
	QueryFacts(ctx context.Context, predicate Predicate) ([]domain.Fact, error)

	// QueryFactsWithHistory returns every fact (authoritative and
	// superseded) matching predicate, for audit and election-inspection
	// call sites.
	QueryFactsWithHistory(ctx context.Context, predicate Predicate) ([]domain.Fact, error)

	// ResolveAuthoritative returns the current authoritative fact for a
	// dedup key, or false if none exists yet.
	ResolveAuthoritative(ctx context.Context, key domain.DedupKey) (domain.Fact, bool, error)

	Close() error
}
