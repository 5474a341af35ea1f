package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ortiz-cia/precios-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db     *sql.DB
	policy WritePolicy
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, policy WritePolicy) (*SQLiteStore, error) {
	if !policy.Valid() {
		return nil, eris.Errorf("sqlite: unknown write policy %q", policy)
	}
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
	return &SQLiteStore{db: db, policy: policy}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS slaughter (
	id                TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
	source_kind       TEXT NOT NULL,
	period_start      TEXT NOT NULL,
	period_end        TEXT NOT NULL,
	category          TEXT NOT NULL,
	breed             TEXT NOT NULL DEFAULT '',
	weight_range      TEXT NOT NULL DEFAULT '',
	price_avg         REAL NOT NULL,
	price_min         REAL,
	price_max         REAL,
	head_count        INTEGER,
	total_kilograms   REAL,
	total_amount      REAL,
	week_price_change REAL,
	quality_flags     TEXT,
	extracted_at      DATETIME NOT NULL,
	UNIQUE(period_start, category, breed, weight_range)
);

CREATE TABLE IF NOT EXISTS restocking (
	id                TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
	source_kind       TEXT NOT NULL,
	period_start      TEXT NOT NULL,
	period_end        TEXT NOT NULL,
	category          TEXT NOT NULL,
	breed             TEXT NOT NULL DEFAULT '',
	weight_range      TEXT NOT NULL DEFAULT '',
	price_avg         REAL NOT NULL,
	price_min         REAL,
	price_max         REAL,
	head_count        INTEGER,
	total_kilograms   REAL,
	total_amount      REAL,
	week_price_change REAL,
	quality_flags     TEXT,
	extracted_at      DATETIME NOT NULL,
	UNIQUE(period_end, category, breed, weight_range)
);

CREATE INDEX IF NOT EXISTS idx_slaughter_period_start ON slaughter(period_start);
CREATE INDEX IF NOT EXISTS idx_slaughter_category ON slaughter(category);
CREATE INDEX IF NOT EXISTS idx_restocking_period_end ON restocking(period_end);
CREATE INDEX IF NOT EXISTS idx_restocking_category ON restocking(category);
CREATE INDEX IF NOT EXISTS idx_restocking_kind ON restocking(source_kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertBatch writes all records in one transaction. Duplicate composite
// keys are skipped under PolicyIgnore and refreshed under PolicyReplace.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, table Table, records []model.PriceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSQL(table, s.policy))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	written := 0
	for _, rec := range records {
		args, err := recordArgs(rec)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s %s", rec.Category, rec.PeriodStart.Format(dateLayout))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return written, nil
}

func sqliteUpsertSQL(table Table, policy WritePolicy) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	base := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(recordColumns, ", "), placeholders)

	conflict := strings.Join(conflictColumns(table), ", ")
	if policy == PolicyIgnore {
		return base + fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", conflict)
	}
	var sets []string
	for _, c := range updateColumns(table) {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return base + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s", conflict, strings.Join(sets, ", "))
}

// QueryRange returns records whose anchor date falls in [start, end],
// ascending by date.
func (s *SQLiteStore) QueryRange(ctx context.Context, table Table, start, end time.Time, f Filters) ([]model.PriceRecord, error) {
	dateCol := DateColumn(table)

	builder := sq.Select(recordColumns...).
		From(string(table)).
		Where(sq.GtOrEq{dateCol: start.Format(dateLayout)}).
		Where(sq.LtOrEq{dateCol: end.Format(dateLayout)}).
		OrderBy(dateCol + " ASC", "category ASC")
	builder = applyFilters(builder, f)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query range")
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var sc recordScanner
		if err := rows.Scan(sc.dest()...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec, err := sc.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rows")
}

func applyFilters(builder sq.SelectBuilder, f Filters) sq.SelectBuilder {
	if f.Kind != "" {
		builder = builder.Where(sq.Eq{"source_kind": string(f.Kind)})
	}
	if f.Category != "" {
		builder = builder.Where(sq.Eq{"category": f.Category})
	}
	if f.Breed != "" {
		builder = builder.Where(sq.Eq{"breed": f.Breed})
	}
	if f.WeightRange != "" {
		builder = builder.Where(sq.Eq{"weight_range": f.WeightRange})
	}
	return builder
}
