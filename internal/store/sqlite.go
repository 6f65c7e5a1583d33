package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/airshed-analytics/exposure-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assets (
	country        TEXT NOT NULL,
	asset_id       TEXT NOT NULL,
	script_version TEXT NOT NULL,
	processed_date DATETIME NOT NULL,
	record         TEXT NOT NULL,
	PRIMARY KEY (country, asset_id)
);

CREATE TABLE IF NOT EXISTS audit_reports (
	id         TEXT PRIMARY KEY,
	country    TEXT NOT NULL,
	asset_id   TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	file_type  TEXT NOT NULL,
	suspicious INTEGER NOT NULL DEFAULT 0,
	report     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_assets_country ON assets(country);
CREATE INDEX IF NOT EXISTS idx_assets_script_version ON assets(script_version);
CREATE INDEX IF NOT EXISTS idx_audit_reports_country ON audit_reports(country);
CREATE INDEX IF NOT EXISTS idx_audit_reports_suspicious ON audit_reports(suspicious);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertAsset(ctx context.Context, rec model.AssetRecord) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal asset %s", rec.AssetID)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assets (country, asset_id, script_version, processed_date, record)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(country, asset_id) DO UPDATE SET
		   script_version = excluded.script_version,
		   processed_date = excluded.processed_date,
		   record = excluded.record`,
		rec.Country, rec.AssetID, rec.ScriptVersion, rec.ProcessedDate.UTC(), string(recJSON),
	)
	return eris.Wrapf(err, "sqlite: upsert asset %s", rec.AssetID)
}

func (s *SQLiteStore) UpsertAssets(ctx context.Context, recs []model.AssetRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	var n int64
	for _, rec := range recs {
		recJSON, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal asset %s", rec.AssetID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets (country, asset_id, script_version, processed_date, record)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(country, asset_id) DO UPDATE SET
			   script_version = excluded.script_version,
			   processed_date = excluded.processed_date,
			   record = excluded.record`,
			rec.Country, rec.AssetID, rec.ScriptVersion, rec.ProcessedDate.UTC(), string(recJSON),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert asset %s", rec.AssetID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) GetAsset(ctx context.Context, country, assetID string) (*model.AssetRecord, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM assets WHERE country = ? AND asset_id = ?`,
		country, assetID,
	).Scan(&recJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get asset %s", assetID)
	}

	var rec model.AssetRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal asset %s", assetID)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListAssets(ctx context.Context, filter AssetFilter) ([]model.AssetRecord, error) {
	query := `SELECT record FROM assets WHERE 1=1`
	var args []any

	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	query += ` ORDER BY country, asset_id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close()

	var recs []model.AssetRecord
	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		var rec model.AssetRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal asset")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list assets iterate")
}

// ReplaceAuditEntries swaps the audit_reports table contents for the results
// of a fresh scan. Partial audits never mix with old rows.
func (s *SQLiteStore) ReplaceAuditEntries(ctx context.Context, entries []model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_reports`); err != nil {
		return eris.Wrap(err, "sqlite: clear audit reports")
	}

	for _, e := range entries {
		var reportJSON sql.NullString
		if e.Report != nil {
			buf, err := json.Marshal(e.Report)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal audit report %s", e.FilePath)
			}
			reportJSON = sql.NullString{String: string(buf), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_reports (id, country, asset_id, file_path, file_type, suspicious, report, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), e.Country, e.AssetID, e.FilePath, e.FileType, boolToInt(e.Suspicious()), reportJSON, e.Err,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert audit report %s", e.FilePath)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit audit reports")
}

func (s *SQLiteStore) ListAuditEntries(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error) {
	query := `SELECT country, asset_id, file_path, file_type, report, error FROM audit_reports WHERE 1=1`
	var args []any

	if filter.Country != "" {
		query += ` AND country = ?`
		args = append(args, filter.Country)
	}
	if filter.OnlySuspicious {
		query += ` AND suspicious = 1`
	}
	query += ` ORDER BY country, asset_id, file_type`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit reports")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var reportJSON sql.NullString
		var errStr sql.NullString
		if err := rows.Scan(&e.Country, &e.AssetID, &e.FilePath, &e.FileType, &reportJSON, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit report")
		}
		if reportJSON.Valid {
			if err := json.Unmarshal([]byte(reportJSON.String), &e.Report); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit report")
			}
		}
		e.Err = errStr.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit reports iterate")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
