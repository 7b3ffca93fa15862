package factstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"finintel/pkg/domain"
)

// SQLiteStore is the default, single-process embedded backend. Grounded on
// theRebelliousNerd-codenerd's internal/northstar/store.go: WAL mode plus a
// busy timeout for safe single-process concurrent access, schema created
// with CREATE TABLE IF NOT EXISTS at open time. It trades codenerd's
// mattn/go-sqlite3 cgo driver for modernc.org/sqlite's pure-Go one (also
// present in that repo's go.mod), since finintel's build should not require
// cgo on any target platform.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a single-file SQLite Fact
// Store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("factstore: creating directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("factstore: opening sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("factstore: initializing schema: %w", err)
	}
	return store, nil
}

const sqliteSchema = `
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
	dimensions_json TEXT NOT NULL,
	value REAL NOT NULL,
	unit_kind TEXT NOT NULL,
	currency TEXT,
	source_ref_json TEXT NOT NULL,
	calculated_from_json TEXT,
	formula TEXT,
	quality_flags_json TEXT,
	classification_level INTEGER NOT NULL,
	authoritative INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_metric_period ON facts(tenant_id, metric_id, period_type, period_year, period_index);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_entity ON facts(tenant_id, entity_id);
CREATE INDEX IF NOT EXISTS idx_facts_tenant_document ON facts(tenant_id, document_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_dedup_authoritative ON facts(tenant_id, entity_id, metric_id, period_type, period_year, period_index, scenario, perimeter, dimensions_hash) WHERE authoritative = 1;
`

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection so a deployment can open the
// session store's embedded table (pkg/access.NewSessionStore) against the
// same sqlite file rather than a second one.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type factRow struct {
	id                  string
	tenantID            string
	entityID            string
	documentID          string
	metricID            string
	periodType          string
	periodYear          int
	periodIndex         int
	scenario            string
	perimeter           string
	dimensionsHash      string
	dimensionsJSON      string
	value               float64
	unitKind            string
	currency            *string
	sourceRefJSON       string
	calculatedFromJSON  *string
	formula             *string
	qualityFlagsJSON    *string
	classificationLevel int
	authoritative       bool
	createdAt           time.Time
}

func toRow(f domain.Fact) (factRow, error) {
	dimsJSON, err := json.Marshal(f.Dimensions)
	if err != nil {
		return factRow{}, fmt.Errorf("marshal dimensions: %w", err)
	}
	srcJSON, err := json.Marshal(f.SourceRef)
	if err != nil {
		return factRow{}, fmt.Errorf("marshal source_ref: %w", err)
	}
	var calcJSON *string
	if len(f.CalculatedFrom) > 0 {
		b, err := json.Marshal(f.CalculatedFrom)
		if err != nil {
			return factRow{}, fmt.Errorf("marshal calculated_from: %w", err)
		}
		s := string(b)
		calcJSON = &s
	}
	var flagsJSON *string
	if len(f.QualityFlags) > 0 {
		b, err := json.Marshal(f.QualityFlags)
		if err != nil {
			return factRow{}, fmt.Errorf("marshal quality_flags: %w", err)
		}
		s := string(b)
		flagsJSON = &s
	}
	var formula *string
	if f.Formula != "" {
		formula = &f.Formula
	}

	return factRow{
		id:                  f.ID,
		tenantID:            f.TenantID,
		entityID:            f.EntityID,
		documentID:          f.DocumentID,
		metricID:            f.MetricID,
		periodType:          string(f.PeriodKey.Type),
		periodYear:          f.PeriodKey.Year,
		periodIndex:         f.PeriodKey.Index,
		scenario:            string(f.Scenario),
		perimeter:           string(f.Perimeter),
		dimensionsHash:      domain.DimensionsHash(f.Dimensions),
		dimensionsJSON:      string(dimsJSON),
		value:               f.Value,
		unitKind:            string(f.Unit),
		currency:            f.Currency,
		sourceRefJSON:       string(srcJSON),
		calculatedFromJSON:  calcJSON,
		formula:             formula,
		qualityFlagsJSON:    flagsJSON,
		classificationLevel: int(f.ClassificationLevel),
		authoritative:       f.Authoritative,
		createdAt:           f.CreatedAt,
	}, nil
}

func fromRow(r factRow) (domain.Fact, error) {
	var dims map[string]string
	if err := json.Unmarshal([]byte(r.dimensionsJSON), &dims); err != nil {
		return domain.Fact{}, fmt.Errorf("unmarshal dimensions: %w", err)
	}
	var sourceRef domain.SourceReference
	if err := json.Unmarshal([]byte(r.sourceRefJSON), &sourceRef); err != nil {
		return domain.Fact{}, fmt.Errorf("unmarshal source_ref: %w", err)
	}
	var calculatedFrom []domain.CalculatedFromEntry
	if r.calculatedFromJSON != nil {
		if err := json.Unmarshal([]byte(*r.calculatedFromJSON), &calculatedFrom); err != nil {
			return domain.Fact{}, fmt.Errorf("unmarshal calculated_from: %w", err)
		}
	}
	var qualityFlags []domain.QualityFlag
	if r.qualityFlagsJSON != nil {
		if err := json.Unmarshal([]byte(*r.qualityFlagsJSON), &qualityFlags); err != nil {
			return domain.Fact{}, fmt.Errorf("unmarshal quality_flags: %w", err)
		}
	}
	formula := ""
	if r.formula != nil {
		formula = *r.formula
	}

	return domain.Fact{
		ID:       r.id,
		TenantID: r.tenantID,
		EntityID: r.entityID,
		DocumentID: r.documentID,
		MetricID: r.metricID,
		Value:    r.value,
		Unit:     domain.UnitKind(r.unitKind),
		Currency: r.currency,
		PeriodKey: domain.PeriodKey{
			Type:  domain.PeriodType(r.periodType),
			Year:  r.periodYear,
			Index: r.periodIndex,
		},
		Scenario:            domain.Scenario(r.scenario),
		Perimeter:            domain.Perimeter(r.perimeter),
		Dimensions:           dims,
		SourceRef:            sourceRef,
		CalculatedFrom:       calculatedFrom,
		Formula:              formula,
		QualityFlags:         qualityFlags,
		ClassificationLevel:  domain.ClassificationLevel(r.classificationLevel),
		CreatedAt:            r.createdAt,
		Authoritative:        r.authoritative,
	}, nil
}

// UpsertFact inserts a new fact row (preserving history) inside a
// transaction, then re-elects the authoritative fact for its dedup key,
// demoting the prior authoritative row if a different one wins (spec.md
// §4.4: "insert the new row (preserving history) and re-elect").
func (s *SQLiteStore) UpsertFact(ctx context.Context, fact domain.Fact) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("factstore: begin transaction: %w", err)
	}
	defer tx.Rollback()

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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO facts (
			id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		row.id, row.tenantID, row.entityID, row.documentID, row.metricID, row.periodType, row.periodYear, row.periodIndex,
		row.scenario, row.perimeter, row.dimensionsHash, row.dimensionsJSON, row.value, row.unitKind, row.currency,
		row.sourceRefJSON, row.calculatedFromJSON, row.formula, row.qualityFlagsJSON,
		row.classificationLevel, row.createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("factstore: insert fact: %w", err)
	}

	if err := s.reElectLocked(ctx, tx, fact.DedupKey()); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("factstore: commit: %w", err)
	}
	return row.id, nil
}

func (s *SQLiteStore) reElectLocked(ctx context.Context, tx *sql.Tx, key domain.DedupKey) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts
		WHERE tenant_id = ? AND entity_id = ? AND metric_id = ? AND period_type = ? AND period_year = ?
			AND period_index = ? AND scenario = ? AND perimeter = ? AND dimensions_hash = ?`,
		key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	)
	if err != nil {
		return fmt.Errorf("factstore: query dedup candidates: %w", err)
	}
	candidates, err := scanFacts(rows)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	winner := ElectAuthoritative(candidates)
	if _, err := tx.ExecContext(ctx, `
		UPDATE facts SET authoritative = CASE WHEN id = ? THEN 1 ELSE 0 END
		WHERE tenant_id = ? AND entity_id = ? AND metric_id = ? AND period_type = ? AND period_year = ?
			AND period_index = ? AND scenario = ? AND perimeter = ? AND dimensions_hash = ?`,
		winner.ID, key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	); err != nil {
		return fmt.Errorf("factstore: re-elect authoritative fact: %w", err)
	}
	return nil
}

func scanFacts(rows *sql.Rows) ([]domain.Fact, error) {
	defer rows.Close()
	var facts []domain.Fact
	for rows.Next() {
		var r factRow
		var authoritativeInt int
		if err := rows.Scan(
			&r.id, &r.tenantID, &r.entityID, &r.documentID, &r.metricID, &r.periodType, &r.periodYear, &r.periodIndex,
			&r.scenario, &r.perimeter, &r.dimensionsHash, &r.dimensionsJSON, &r.value, &r.unitKind, &r.currency,
			&r.sourceRefJSON, &r.calculatedFromJSON, &r.formula, &r.qualityFlagsJSON,
			&r.classificationLevel, &authoritativeInt, &r.createdAt,
		); err != nil {
			return nil, fmt.Errorf("factstore: scan fact row: %w", err)
		}
		r.authoritative = authoritativeInt != 0
		fact, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// QueryFacts returns only authoritative facts matching predicate.
func (s *SQLiteStore) QueryFacts(ctx context.Context, predicate Predicate) ([]domain.Fact, error) {
	return s.query(ctx, predicate, true)
}

// QueryFactsWithHistory returns every fact, authoritative or not.
func (s *SQLiteStore) QueryFactsWithHistory(ctx context.Context, predicate Predicate) ([]domain.Fact, error) {
	return s.query(ctx, predicate, false)
}

func (s *SQLiteStore) query(ctx context.Context, predicate Predicate, authoritativeOnly bool) ([]domain.Fact, error) {
	var conditions []string
	var args []any

	conditions = append(conditions, "tenant_id = ?")
	args = append(args, predicate.TenantID)
	if predicate.EntityID != nil {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, *predicate.EntityID)
	}
	if predicate.MetricID != nil {
		conditions = append(conditions, "metric_id = ?")
		args = append(args, *predicate.MetricID)
	}
	if predicate.PeriodKey != nil {
		conditions = append(conditions, "period_type = ? AND period_year = ? AND period_index = ?")
		args = append(args, string(predicate.PeriodKey.Type), predicate.PeriodKey.Year, predicate.PeriodKey.Index)
	}
	if predicate.Scenario != nil {
		conditions = append(conditions, "scenario = ?")
		args = append(args, string(*predicate.Scenario))
	}
	if predicate.Perimeter != nil {
		conditions = append(conditions, "perimeter = ?")
		args = append(args, string(*predicate.Perimeter))
	}
	if predicate.DocumentID != nil {
		conditions = append(conditions, "document_id = ?")
		args = append(args, *predicate.DocumentID)
	}
	if authoritativeOnly {
		conditions = append(conditions, "authoritative = 1")
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts WHERE %s ORDER BY created_at ASC`, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("factstore: query facts: %w", err)
	}
	return scanFacts(rows)
}

// ResolveAuthoritative returns the current authoritative fact for key.
func (s *SQLiteStore) ResolveAuthoritative(ctx context.Context, key domain.DedupKey) (domain.Fact, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, entity_id, document_id, metric_id, period_type, period_year, period_index,
			scenario, perimeter, dimensions_hash, dimensions_json, value, unit_kind, currency,
			source_ref_json, calculated_from_json, formula, quality_flags_json,
			classification_level, authoritative, created_at
		FROM facts
		WHERE tenant_id = ? AND entity_id = ? AND metric_id = ? AND period_type = ? AND period_year = ?
			AND period_index = ? AND scenario = ? AND perimeter = ? AND dimensions_hash = ? AND authoritative = 1`,
		key.TenantID, key.EntityID, key.MetricID, key.PeriodKey.Type, key.PeriodKey.Year,
		key.PeriodKey.Index, key.Scenario, key.Perimeter, key.DimensionsHash,
	)

	var r factRow
	var authoritativeInt int
	err := row.Scan(
		&r.id, &r.tenantID, &r.entityID, &r.documentID, &r.metricID, &r.periodType, &r.periodYear, &r.periodIndex,
		&r.scenario, &r.perimeter, &r.dimensionsHash, &r.dimensionsJSON, &r.value, &r.unitKind, &r.currency,
		&r.sourceRefJSON, &r.calculatedFromJSON, &r.formula, &r.qualityFlagsJSON,
		&r.classificationLevel, &authoritativeInt, &r.createdAt,
	)
	if err == sql.ErrNoRows {
		return domain.Fact{}, false, nil
	}
	if err != nil {
		return domain.Fact{}, false, fmt.Errorf("factstore: resolve authoritative: %w", err)
	}
	r.authoritative = authoritativeInt != 0
	fact, err := fromRow(r)
	if err != nil {
		return domain.Fact{}, false, err
	}
	return fact, true, nil
}

var _ FactStore = (*SQLiteStore)(nil)
