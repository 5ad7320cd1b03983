// Package postgres implements the staging store on PostgreSQL using pgx.
//
// The staging table is replaced inside a single transaction: TRUNCATE, a COPY
// of every row, then an UPDATE trimming the text columns. Readers see either
// the previous contents or the new ones, never an empty or half-loaded table.
//
// The table itself is owned by the database administrators. For reference:
//
//	CREATE TABLE existencias_staging (
//	    item_number        TEXT,
//	    item_description   TEXT,
//	    qty                NUMERIC(12,3),
//	    uom                TEXT,
//	    locator            TEXT,
//	    subinventory       TEXT,
//	    planner            TEXT,
//	    organization_code  TEXT
//	);
//
//	CREATE TABLE ingest_runs (
//	    id               UUID PRIMARY KEY,
//	    status           TEXT NOT NULL,
//	    started_at       TIMESTAMPTZ NOT NULL,
//	    finished_at      TIMESTAMPTZ NOT NULL,
//	    source           TEXT NOT NULL,
//	    rows_loaded      BIGINT NOT NULL,
//	    null_quantities  INTEGER NOT NULL,
//	    error_code       TEXT,
//	    error            TEXT,
//	    stages           JSONB NOT NULL
//	);
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/onhand/internal/config"
	"github.com/JonMunkholm/onhand/internal/core"
)

// RunsTable receives one row per finished run when run recording is enabled.
const RunsTable = "ingest_runs"

// Store is a core.StagingStore and core.RunRecorder backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens and verifies a pool using the database settings.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", "postgres", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database", "driver", "postgres")
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ReplaceStaging implements core.StagingStore.
func (s *Store) ReplaceStaging(ctx context.Context, table string, rows core.RowSource) (int64, error) {
	ident := tableIdentifier(table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, truncateSQL(ident)); err != nil {
		return 0, fmt.Errorf("clear staging: %w", err)
	}

	n, err := tx.CopyFrom(ctx, ident, core.ColumnNames(), &copySource{rows: rows})
	if err != nil {
		return n, fmt.Errorf("copy rows: %w", err)
	}

	if _, err := tx.Exec(ctx, trimSQL(ident, core.TextColumns())); err != nil {
		return n, fmt.Errorf("trim text columns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return n, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// RecordRun implements core.RunRecorder by appending to RunsTable.
func (s *Store) RecordRun(ctx context.Context, rec *core.RunRecord) error {
	query, args, err := insertRunSQL(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// tableIdentifier accepts "table" or "schema.table".
func tableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

func truncateSQL(ident pgx.Identifier) string {
	return "TRUNCATE TABLE " + ident.Sanitize()
}

func trimSQL(ident pgx.Identifier, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		col := pgx.Identifier{c}.Sanitize()
		sets[i] = fmt.Sprintf("%s = TRIM(%s)", col, col)
	}
	return "UPDATE " + ident.Sanitize() + " SET " + strings.Join(sets, ", ")
}

func insertRunSQL(rec *core.RunRecord) (string, []any, error) {
	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return "", nil, fmt.Errorf("encode stages: %w", err)
	}

	query := "INSERT INTO " + pgx.Identifier{RunsTable}.Sanitize() + ` (
		id, status, started_at, finished_at, source, rows_loaded, null_quantities, error_code, error, stages
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	args := []any{
		rec.ID.String(),
		string(rec.Status),
		rec.StartedAt,
		rec.FinishedAt,
		rec.Source,
		rec.RowsLoaded,
		rec.NullQuantities,
		nullString(rec.ErrorCode),
		nullString(rec.Error),
		string(stages),
	}
	return query, args, nil
}

func nullString(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// copySource adapts a core.RowSource to pgx.CopyFromSource.
type copySource struct {
	rows core.RowSource
}

func (c *copySource) Next() bool { return c.rows.Next() }

func (c *copySource) Values() ([]any, error) {
	vals := c.rows.Row().Values()
	for i, v := range vals {
		d, ok := v.(decimal.Decimal)
		if !ok {
			continue
		}
		num, err := toNumeric(d)
		if err != nil {
			return nil, err
		}
		vals[i] = num
	}
	return vals, nil
}

func (c *copySource) Err() error { return c.rows.Err() }

// toNumeric converts a decimal to the pgx numeric type via its exact text form.
func toNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, fmt.Errorf("convert %s to numeric: %w", d, err)
	}
	return num, nil
}
