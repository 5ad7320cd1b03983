// Package mysql implements the staging store on MySQL using LOAD DATA LOCAL INFILE.
//
// Rows are re-encoded by the Go parser into one canonical tab-separated stream
// and handed to the server through the driver's Reader:: handler, so the
// server never sees the producer's quoting or line endings. The server must
// have local_infile enabled.
//
// TRUNCATE is DDL in MySQL and commits implicitly, so a failure after the
// clear leaves the staging table empty or partially loaded until the next
// successful run.
package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/onhand/internal/config"
	"github.com/JonMunkholm/onhand/internal/core"
)

// RunsTable receives one row per finished run when run recording is enabled.
const RunsTable = "ingest_runs"

var readerSeq atomic.Uint64

// Store is a core.StagingStore and core.RunRecorder backed by database/sql.
type Store struct {
	db *sql.DB
}

// Connect opens and verifies a connection pool. cfg.URL is a driver DSN such as
// user:pass@tcp(host:3306)/inventory.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	mc, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	mc.ParseTime = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(max(cfg.MinConns, 1))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database", "driver", "mysql", "name", mc.DBName, "addr", mc.Addr)
	return &Store{db: db}, nil
}

// New wraps an existing handle opened with the mysql driver.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceStaging implements core.StagingStore.
func (s *Store) ReplaceStaging(ctx context.Context, table string, rows core.RowSource) (int64, error) {
	// session settings only hold on one connection
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SESSION sql_mode = ''"); err != nil {
		return 0, fmt.Errorf("set sql_mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("clear staging: %w", err)
	}

	n, err := s.load(ctx, conn, table, rows)
	if err != nil {
		return n, err
	}

	if _, err := conn.ExecContext(ctx, trimSQL(table, core.TextColumns())); err != nil {
		return n, fmt.Errorf("trim text columns: %w", err)
	}
	return n, nil
}

type writeResult struct {
	rows int64
	err  error
}

func (s *Store) load(ctx context.Context, conn *sql.Conn, table string, rows core.RowSource) (int64, error) {
	name := fmt.Sprintf("onhand-%d", readerSeq.Add(1))
	pr, pw := io.Pipe()

	done := make(chan writeResult, 1)
	go func() {
		n, err := WriteCanonical(pw, rows)
		pw.CloseWithError(err)
		done <- writeResult{rows: n, err: err}
	}()

	mysql.RegisterReaderHandler(name, func() io.Reader { return pr })
	defer mysql.DeregisterReaderHandler(name)

	res, execErr := conn.ExecContext(ctx, loadSQL(table, name, core.ColumnNames()))
	// unblock the writer if the server stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	written := <-done

	if execErr != nil {
		return written.rows, fmt.Errorf("load data: %w", execErr)
	}
	if written.err != nil {
		return written.rows, fmt.Errorf("encode rows: %w", written.err)
	}

	if n, err := res.RowsAffected(); err == nil {
		return n, nil
	}
	return written.rows, nil
}

// RecordRun implements core.RunRecorder by appending to RunsTable.
func (s *Store) RecordRun(ctx context.Context, rec *core.RunRecord) error {
	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}

	query := "INSERT INTO " + quoteIdent(RunsTable) +
		" (id, status, started_at, finished_at, source, rows_loaded, null_quantities, error_code, error, stages)" +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	_, err = s.db.ExecContext(ctx, query,
		rec.ID.String(),
		string(rec.Status),
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
		rec.Source,
		rec.RowsLoaded,
		rec.NullQuantities,
		sql.NullString{String: rec.ErrorCode, Valid: rec.ErrorCode != ""},
		sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		string(stages),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// quoteIdent quotes "table" or "schema.table" with backticks.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func loadSQL(table, readerName string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return "LOAD DATA LOCAL INFILE 'Reader::" + readerName + "'" +
		" INTO TABLE " + quoteIdent(table) +
		" CHARACTER SET utf8mb4" +
		` FIELDS TERMINATED BY '\t' ESCAPED BY '\\'` +
		` LINES TERMINATED BY '\n'` +
		" (" + strings.Join(quoted, ", ") + ")"
}

func trimSQL(table string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		col := quoteIdent(c)
		sets[i] = col + " = TRIM(" + col + ")"
	}
	return "UPDATE " + quoteIdent(table) + " SET " + strings.Join(sets, ", ")
}

// WriteCanonical encodes rows in the LOAD DATA default text format: fields
// separated by tab, records ended by newline, backslash escapes and \N for NULL.
// It returns the number of rows written and the first error from rows or w.
func WriteCanonical(w io.Writer, rows core.RowSource) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64

	for rows.Next() {
		for i, v := range rows.Row().Values() {
			if i > 0 {
				bw.WriteByte('\t')
			}
			switch v := v.(type) {
			case nil:
				bw.WriteString(`\N`)
			case decimal.Decimal:
				bw.WriteString(v.String())
			case string:
				writeEscaped(bw, v)
			default:
				writeEscaped(bw, fmt.Sprint(v))
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

func writeEscaped(bw *bufio.Writer, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			bw.WriteString(`\\`)
		case '\t':
			bw.WriteString(`\t`)
		case '\n':
			bw.WriteString(`\n`)
		case '\r':
			bw.WriteString(`\r`)
		case 0:
			bw.WriteString(`\0`)
		default:
			bw.WriteByte(c)
		}
	}
}
