package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ortiz-cia/precios-cli/internal/db"
	"github.com/ortiz-cia/precios-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool   db.Pool
	policy WritePolicy
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, policy WritePolicy, poolCfg *PoolConfig) (*PostgresStore, error) {
	if !policy.Valid() {
		return nil, eris.Errorf("postgres: unknown write policy %q", policy)
	}
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, policy: policy}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS slaughter (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_kind       TEXT NOT NULL,
	period_start      TEXT NOT NULL,
	period_end        TEXT NOT NULL,
	category          TEXT NOT NULL,
	breed             TEXT NOT NULL DEFAULT '',
	weight_range      TEXT NOT NULL DEFAULT '',
	price_avg         DOUBLE PRECISION NOT NULL,
	price_min         DOUBLE PRECISION,
	price_max         DOUBLE PRECISION,
	head_count        BIGINT,
	total_kilograms   DOUBLE PRECISION,
	total_amount      DOUBLE PRECISION,
	week_price_change DOUBLE PRECISION,
	quality_flags     JSONB,
	extracted_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(period_start, category, breed, weight_range)
);

CREATE TABLE IF NOT EXISTS restocking (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_kind       TEXT NOT NULL,
	period_start      TEXT NOT NULL,
	period_end        TEXT NOT NULL,
	category          TEXT NOT NULL,
	breed             TEXT NOT NULL DEFAULT '',
	weight_range      TEXT NOT NULL DEFAULT '',
	price_avg         DOUBLE PRECISION NOT NULL,
	price_min         DOUBLE PRECISION,
	price_max         DOUBLE PRECISION,
	head_count        BIGINT,
	total_kilograms   DOUBLE PRECISION,
	total_amount      DOUBLE PRECISION,
	week_price_change DOUBLE PRECISION,
	quality_flags     JSONB,
	extracted_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(period_end, category, breed, weight_range)
);

CREATE INDEX IF NOT EXISTS idx_slaughter_period_start ON slaughter(period_start);
CREATE INDEX IF NOT EXISTS idx_slaughter_category ON slaughter(category);
CREATE INDEX IF NOT EXISTS idx_restocking_period_end ON restocking(period_end);
CREATE INDEX IF NOT EXISTS idx_restocking_category ON restocking(category);
CREATE INDEX IF NOT EXISTS idx_restocking_kind ON restocking(source_kind);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertBatch writes all records through a temp-table COPY upsert, which
// keeps large backfill batches to a single round trip per batch.
func (s *PostgresStore) UpsertBatch(ctx context.Context, table Table, records []model.PriceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		args, err := recordArgs(rec)
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        string(table),
		Columns:      recordColumns,
		ConflictKeys: conflictColumns(table),
		UpdateCols:   updateColumns(table),
		DoNothing:    s.policy == PolicyIgnore,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert batch into %s", table)
	}
	return int(n), nil
}

// QueryRange returns records whose anchor date falls in [start, end],
// ascending by date.
func (s *PostgresStore) QueryRange(ctx context.Context, table Table, start, end time.Time, f Filters) ([]model.PriceRecord, error) {
	dateCol := DateColumn(table)

	builder := sq.Select(recordColumns...).
		From(string(table)).
		Where(sq.GtOrEq{dateCol: start.Format(dateLayout)}).
		Where(sq.LtOrEq{dateCol: end.Format(dateLayout)}).
		OrderBy(dateCol+" ASC", "category ASC").
		PlaceholderFormat(sq.Dollar)
	builder = applyFilters(builder, f)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query range")
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var sc recordScanner
		if err := rows.Scan(sc.dest()...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec, err := sc.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rows")
}
