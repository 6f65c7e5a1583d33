package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/airshed-analytics/exposure-cli/internal/db"
	"github.com/airshed-analytics/exposure-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_asset": `SELECT record FROM assets WHERE country = $1 AND asset_id = $2`,
	"upsert_asset": `INSERT INTO assets (country, asset_id, script_version, processed_date, record)
	 VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (country, asset_id) DO UPDATE SET
	   script_version = EXCLUDED.script_version,
	   processed_date = EXCLUDED.processed_date,
	   record = EXCLUDED.record`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assets (
	country        TEXT NOT NULL,
	asset_id       TEXT NOT NULL,
	script_version TEXT NOT NULL,
	processed_date TIMESTAMPTZ NOT NULL,
	record         JSONB NOT NULL,
	PRIMARY KEY (country, asset_id)
);

CREATE TABLE IF NOT EXISTS audit_reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	country    TEXT NOT NULL,
	asset_id   TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	file_type  TEXT NOT NULL,
	suspicious BOOLEAN NOT NULL DEFAULT false,
	report     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assets_country ON assets(country);
CREATE INDEX IF NOT EXISTS idx_assets_script_version ON assets(script_version);
CREATE INDEX IF NOT EXISTS idx_audit_reports_country ON audit_reports(country);
CREATE INDEX IF NOT EXISTS idx_audit_reports_suspicious ON audit_reports(suspicious);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertAsset(ctx context.Context, rec model.AssetRecord) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal asset %s", rec.AssetID)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO assets (country, asset_id, script_version, processed_date, record)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (country, asset_id) DO UPDATE SET
		   script_version = EXCLUDED.script_version,
		   processed_date = EXCLUDED.processed_date,
		   record = EXCLUDED.record`,
		rec.Country, rec.AssetID, rec.ScriptVersion, rec.ProcessedDate.UTC(), recJSON,
	)
	return eris.Wrapf(err, "postgres: upsert asset %s", rec.AssetID)
}

// UpsertAssets bulk-upserts a batch of records through a temp table.
func (s *PostgresStore) UpsertAssets(ctx context.Context, recs []model.AssetRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		recJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal asset %s", rec.AssetID)
		}
		rows = append(rows, []any{rec.Country, rec.AssetID, rec.ScriptVersion, rec.ProcessedDate.UTC(), recJSON})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "assets",
		Columns:      []string{"country", "asset_id", "script_version", "processed_date", "record"},
		ConflictKeys: []string{"country", "asset_id"},
	}, rows)
}

func (s *PostgresStore) GetAsset(ctx context.Context, country, assetID string) (*model.AssetRecord, error) {
	var recJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM assets WHERE country = $1 AND asset_id = $2`,
		country, assetID,
	).Scan(&recJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get asset %s", assetID)
	}

	var rec model.AssetRecord
	if err := json.Unmarshal(recJSON, &rec); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal asset %s", assetID)
	}
	return &rec, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, filter AssetFilter) ([]model.AssetRecord, error) {
	query := `SELECT record FROM assets WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Country != "" {
		query += fmt.Sprintf(` AND country = $%d`, argIdx)
		args = append(args, filter.Country)
		argIdx++
	}
	query += ` ORDER BY country, asset_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	var recs []model.AssetRecord
	for rows.Next() {
		var recJSON []byte
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		var rec model.AssetRecord
		if err := json.Unmarshal(recJSON, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal asset")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list assets iterate")
}

// ReplaceAuditEntries swaps the audit_reports table contents for a fresh
// scan, bulk-loading the new rows over the COPY protocol.
func (s *PostgresStore) ReplaceAuditEntries(ctx context.Context, entries []model.AuditEntry) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE audit_reports`); err != nil {
		return eris.Wrap(err, "postgres: clear audit reports")
	}
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		var reportJSON any
		if e.Report != nil {
			buf, err := json.Marshal(e.Report)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal audit report %s", e.FilePath)
			}
			reportJSON = buf
		}
		rows = append(rows, []any{
			uuid.New().String(), e.Country, e.AssetID, e.FilePath, e.FileType,
			e.Suspicious(), reportJSON, e.Err,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "audit_reports",
		[]string{"id", "country", "asset_id", "file_path", "file_type", "suspicious", "report", "error"},
		rows,
	)
	return err
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error) {
	query := `SELECT country, asset_id, file_path, file_type, report, error FROM audit_reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Country != "" {
		query += fmt.Sprintf(` AND country = $%d`, argIdx)
		args = append(args, filter.Country)
		argIdx++
	}
	if filter.OnlySuspicious {
		query += ` AND suspicious`
	}
	query += ` ORDER BY country, asset_id, file_type`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit reports")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var reportJSON []byte
		var errStr *string
		if err := rows.Scan(&e.Country, &e.AssetID, &e.FilePath, &e.FileType, &reportJSON, &errStr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit report")
		}
		if len(reportJSON) > 0 {
			if err := json.Unmarshal(reportJSON, &e.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit report")
			}
		}
		if errStr != nil {
			e.Err = *errStr
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit reports iterate")
}
