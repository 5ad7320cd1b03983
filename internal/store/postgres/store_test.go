package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/onhand/internal/config"
	"github.com/JonMunkholm/onhand/internal/core"
)

// sliceRows is a core.RowSource over a fixed slice.
type sliceRows struct {
	rows []core.StagingRow
	i    int
	err  error
}

func (s *sliceRows) Next() bool {
	if s.i >= len(s.rows) {
		return false
	}
	s.i++
	return true
}

func (s *sliceRows) Row() core.StagingRow { return s.rows[s.i-1] }

func (s *sliceRows) Err() error { return s.err }

func qty(s string) decimal.NullDecimal {
	q, err := core.ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// ----------------------------------------------------------------------------
// COPY source
// ----------------------------------------------------------------------------

func TestCopySourceValues(t *testing.T) {
	src := &copySource{rows: &sliceRows{rows: []core.StagingRow{
		{ItemNumber: "A-100", Qty: qty("1,234.5"), OrganizationCode: "M01"},
		{ItemNumber: "A-200", Qty: qty("")},
	}}}

	if !src.Next() {
		t.Fatal("Next() = false on first row")
	}
	vals, err := src.Values()
	if err != nil {
		t.Fatalf("Values() error: %v", err)
	}
	if len(vals) != len(core.StagingColumns) {
		t.Fatalf("len(Values()) = %d, want %d", len(vals), len(core.StagingColumns))
	}
	num, ok := vals[2].(pgtype.Numeric)
	if !ok || !num.Valid {
		t.Fatalf("qty value = %#v, want valid pgtype.Numeric", vals[2])
	}
	f, err := num.Float64Value()
	if err != nil || f.Float64 != 1234.5 {
		t.Errorf("qty = %v (%v), want 1234.5", f.Float64, err)
	}
	if vals[0] != "A-100" || vals[7] != "M01" {
		t.Errorf("text values = %v", vals)
	}

	if !src.Next() {
		t.Fatal("Next() = false on second row")
	}
	vals, _ = src.Values()
	if vals[2] != nil {
		t.Errorf("NULL qty value = %#v, want nil", vals[2])
	}

	if src.Next() {
		t.Error("Next() = true past the end")
	}
}

func TestCopySourcePropagatesErr(t *testing.T) {
	want := errors.New("line 7: expected 8 fields, found 3")
	src := &copySource{rows: &sliceRows{err: want}}
	if src.Next() {
		t.Fatal("Next() = true on empty source")
	}
	if !errors.Is(src.Err(), want) {
		t.Errorf("Err() = %v, want %v", src.Err(), want)
	}
}

// ----------------------------------------------------------------------------
// SQL builders
// ----------------------------------------------------------------------------

func TestTruncateSQL(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"existencias_staging", `TRUNCATE TABLE "existencias_staging"`},
		{"inv.existencias_staging", `TRUNCATE TABLE "inv"."existencias_staging"`},
		{`bad"name`, `TRUNCATE TABLE "bad""name"`},
	}
	for _, tt := range tests {
		if got := truncateSQL(tableIdentifier(tt.table)); got != tt.want {
			t.Errorf("truncateSQL(%q) = %s, want %s", tt.table, got, tt.want)
		}
	}
}

func TestTrimSQL(t *testing.T) {
	got := trimSQL(tableIdentifier("existencias_staging"), []string{"item_number", "uom"})
	want := `UPDATE "existencias_staging" SET "item_number" = TRIM("item_number"), "uom" = TRIM("uom")`
	if got != want {
		t.Errorf("trimSQL() =\n%s\nwant\n%s", got, want)
	}

	full := trimSQL(tableIdentifier("t"), core.TextColumns())
	if strings.Contains(full, `"qty"`) {
		t.Error("trimSQL() should not touch qty")
	}
}

func TestInsertRunSQL(t *testing.T) {
	rec := core.NewRunRecord(time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC))
	rec.Source = `\\erp\exports\RPT_OnHand.csv`
	rec.Stages = []core.StageResult{{Stage: core.StageTransport, Status: core.StatusSucceeded}}
	rec.RowsLoaded = 3
	rec.Finish(rec.StartedAt.Add(time.Minute), nil)

	query, args, err := insertRunSQL(rec)
	if err != nil {
		t.Fatalf("insertRunSQL() error: %v", err)
	}
	if !strings.HasPrefix(query, `INSERT INTO "ingest_runs"`) {
		t.Errorf("query = %s", query)
	}
	if len(args) != 10 {
		t.Fatalf("len(args) = %d, want 10", len(args))
	}
	if args[0] != rec.ID.String() || args[1] != "succeeded" {
		t.Errorf("args = %v", args)
	}
	if code := args[7].(pgtype.Text); code.Valid {
		t.Errorf("error_code should be NULL on success, got %v", code)
	}
	if stages := args[9].(string); !strings.Contains(stages, `"stage":"transport"`) {
		t.Errorf("stages json = %s", stages)
	}
}

// ----------------------------------------------------------------------------
// Integration (requires a database)
// ----------------------------------------------------------------------------

func TestStoreIntegration(t *testing.T) {
	url := os.Getenv("ONHAND_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping integration test: ONHAND_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Connect(ctx, config.DatabaseConfig{URL: url, MaxConns: 1})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer store.Close()

	// one connection, so the temp table is visible to every statement
	table := "onhand_test_staging"
	_, err = store.pool.Exec(ctx, `CREATE TEMP TABLE IF NOT EXISTS `+table+` (
		item_number TEXT, item_description TEXT, qty NUMERIC(12,3), uom TEXT,
		locator TEXT, subinventory TEXT, planner TEXT, organization_code TEXT)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	rows := []core.StagingRow{
		{ItemNumber: " A-100 ", ItemDescription: "Hex bolt", Qty: qty("500")},
		{ItemNumber: "A-200", Qty: qty("")},
	}
	for i := 0; i < 2; i++ {
		n, err := store.ReplaceStaging(ctx, table, &sliceRows{rows: rows})
		if err != nil {
			t.Fatalf("ReplaceStaging() #%d error: %v", i, err)
		}
		if n != 2 {
			t.Errorf("ReplaceStaging() #%d = %d rows, want 2", i, n)
		}
	}

	var count int
	var item string
	if err := store.pool.QueryRow(ctx, "SELECT count(*), min(item_number) FROM "+table).Scan(&count, &item); err != nil {
		t.Fatal(err)
	}
	if count != 2 || item != "A-100" {
		t.Errorf("staging = %d rows, first item %q", count, item)
	}
}
