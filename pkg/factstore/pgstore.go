package factstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finintel/pkg/domain"
)

// PostgresStore is the concurrent-writer backend, for deployments where more
// than one process ingests documents for the same tenant at once (spec.md
// §4.4's "process isolation" clause — sqlite's single-writer lock does not
// hold up under that). Grounded on the teacher's pkg/core/store: db.go's
// pgxpool.Pool construction and analysis_repo.go's parametrized
// upsert-then-reselect shape, generalized from one JSONB blob per ticker to
// the dimensional schema spec.md §4.4 describes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
// Unlike the teacher's package-level once.Do singleton, the pool is owned by
// the returned store so tests can open and close independent instances
// against different databases.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("factstore: parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("factstore: connecting to postgres: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("factstore: initializing schema: %w", err)
	}
	return store, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	metric_id TEXT NOT NULL,
	period_type TEXT NOT NULL,
	period_year INTEGER NOT NULL,
	period_index INTEGER NOT NULL,
	scenario TEXT NOT NULL,
	perimeter TEXT NOT NULL,
	dimensions_hash TEXT NOT NULL,
	dimensions_json JSONB NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	unit_kind TEXT NOT NULL,
	currency TEXT,
	source_ref_json JSONB NOT NULL,
	calculated_from_json JSONB,
	formula TEXT,
	quality_flags_json JSONB,
	classification_level INTEGER NOT NULL,
	authoritative BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_metric_period ON facts(tenant_id, metric_id, period_type, period_year, period_index);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_entity ON facts(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_document ON facts(tenant_id, document_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_dedup_authoritative ON facts(tenant_id, entity_id, metric_id, period_type, period_year, period_index, scenario, perimeter, dimensions_hash) WHERE authoritative;
`

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertFact mirrors SQLiteStore.UpsertFact: insert preserving history, then
// re-elect the authoritative row for the dedup key, inside one transaction
// so a concurrent writer never observes a partially re-elected key.
func (s *PostgresStore) UpsertFact(ctx context.Context, fact domain.Fact) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("factstore: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fact.Authoritative = false
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now()
	}
	row, err := toRow(fact)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO facts (
			id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, false, $21)`,
		row.id, row.tenantID, row.entityID, row.documentID, row.metricID, row.periodType, row.periodYear, row.periodIndex,
		row.scenario, row.perimeter, row.dimensionsHash, row.dimensionsJSON, row.value, row.unitKind, row.currency,
		row.sourceRefJSON, row.calculatedFromJSON, row.formula, row.qualityFlagsJSON,
		row.classificationLevel, row.createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("factstore: insert fact: %w", err)
	}

	if err := s.reElect(ctx, tx, fact.DedupKey()); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("factstore: commit: %w", err)
	}
	return row.id, nil
}

func (s *PostgresStore) reElect(ctx context.Context, tx pgx.Tx, key domain.DedupKey) error {
	rows, err := tx.Query(ctx, `
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts
		WHERE tenant_id = $1 AND entity_id = $2 AND metric_id = $3 AND period_type = $4 AND period_year = $5
			AND period_index = $6 AND scenario = $7 AND perimeter = $8 AND dimensions_hash = $9`,
		key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	)
	if err != nil {
		return fmt.Errorf("factstore: query dedup candidates: %w", err)
	}
	candidates, err := scanPgxFacts(rows)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	winner := ElectAuthoritative(candidates)
	if _, err := tx.Exec(ctx, `
		UPDATE facts SET authoritative = (id = $1)
		WHERE tenant_id = $2 AND entity_id = $3 AND metric_id = $4 AND period_type = $5 AND period_year = $6
			AND period_index = $7 AND scenario = $8 AND perimeter = $9 AND dimensions_hash = $10`,
		winner.ID, key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	); err != nil {
		return fmt.Errorf("factstore: re-elect authoritative fact: %w", err)
	}
	return nil
}

func scanPgxFacts(rows pgx.Rows) ([]domain.Fact, error) {
	defer rows.Close()
	var facts []domain.Fact
	for rows.Next() {
		var r factRow
		if err := rows.Scan(
			&r.id, &r.tenantID, &r.entityID, &r.documentID, &r.metricID, &r.periodType, &r.periodYear, &r.periodIndex,
			&r.scenario, &r.perimeter, &r.dimensionsHash, &r.dimensionsJSON, &r.value, &r.unitKind, &r.currency,
			&r.sourceRefJSON, &r.calculatedFromJSON, &r.formula, &r.qualityFlagsJSON,
			&r.classificationLevel, &r.authoritative, &r.createdAt,
		); err != nil {
			return nil, fmt.Errorf("factstore: scan fact row: %w", err)
		}
		fact, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// QueryFacts returns only authoritative facts matching predicate.
func (s *PostgresStore) QueryFacts(ctx context.Context, predicate Predicate) ([]domain.Fact, error) {
	return s.query(ctx, predicate, true)
}

// QueryFactsWithHistory returns every fact, authoritative or not.
func (s *PostgresStore) QueryFactsWithHistory(ctx context.Context, predicate Predicate) ([]domain.Fact, error) {
	return s.query(ctx, predicate, false)
}

func (s *PostgresStore) query(ctx context.Context, predicate Predicate, authoritativeOnly bool) ([]domain.Fact, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions, "tenant_id = "+arg(predicate.TenantID))
	if predicate.EntityID != nil {
		conditions = append(conditions, "entity_id = "+arg(*predicate.EntityID))
	}
	if predicate.MetricID != nil {
		conditions = append(conditions, "metric_id = "+arg(*predicate.MetricID))
	}
	if predicate.PeriodKey != nil {
		conditions = append(conditions,
			fmt.Sprintf("period_type = %s AND period_year = %s AND period_index = %s",
				arg(string(predicate.PeriodKey.Type)), arg(predicate.PeriodKey.Year), arg(predicate.PeriodKey.Index)))
	}
	if predicate.Scenario != nil {
		conditions = append(conditions, "scenario = "+arg(string(*predicate.Scenario)))
	}
	if predicate.Perimeter != nil {
		conditions = append(conditions, "perimeter = "+arg(string(*predicate.Perimeter)))
	}
	if predicate.DocumentID != nil {
		conditions = append(conditions, "document_id = "+arg(*predicate.DocumentID))
	}
	if authoritativeOnly {
		conditions = append(conditions, "authoritative")
	}

	where := conditions[0]
	for _, c := range conditions[1:] {
		where += " AND " + c
	}
	query := fmt.Sprintf(`
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts WHERE %s ORDER BY created_at ASC`, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("factstore: query facts: %w", err)
	}
	return scanPgxFacts(rows)
}

// ResolveAuthoritative returns the current authoritative fact for key.
func (s *PostgresStore) ResolveAuthoritative(ctx context.Context, key domain.DedupKey) (domain.Fact, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts
		WHERE tenant_id = $1 AND entity_id = $2 AND metric_id = $3 AND period_type = $4 AND period_year = $5
			AND period_index = $6 AND scenario = $7 AND perimeter = $8 AND dimensions_hash = $9 AND authoritative`,
		key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	)

	var r factRow
	err := row.Scan(
		&r.id, &r.tenantID, &r.entityID, &r.documentID, &r.metricID, &r.periodType, &r.periodYear, &r.periodIndex,
		&r.scenario, &r.perimeter, &r.dimensionsHash, &r.dimensionsJSON, &r.value, &r.unitKind, &r.currency,
		&r.sourceRefJSON, &r.calculatedFromJSON, &r.formula, &r.qualityFlagsJSON,
		&r.classificationLevel, &r.authoritative, &r.createdAt,
	)
	if err == pgx.ErrNoRows {
		return domain.Fact{}, false, nil
	}
	if err != nil {
		return domain.Fact{}, false, fmt.Errorf("factstore: resolve authoritative: %w", err)
	}
	fact, err := fromRow(r)
	if err != nil {
		return domain.Fact{}, false, err
	}
	return fact, true, nil
}

var _ FactStore = (*PostgresStore)(nil)
