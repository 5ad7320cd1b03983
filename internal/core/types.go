package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LineEnding is the record terminator of an extract.
type LineEnding string

const (
	LineEndingLF   LineEnding = "\n"
	LineEndingCRLF LineEnding = "\r\n"
)

// String renders the terminator escaped, as it appears in logs and SQL.
func (l LineEnding) String() string {
	if l == LineEndingCRLF {
		return `\r\n`
	}
	return `\n`
}

// Delimiter is the field separator of an extract.
type Delimiter rune

const (
	DelimiterComma Delimiter = ','
	DelimiterTab   Delimiter = '\t'
)

// String renders the delimiter escaped.
func (d Delimiter) String() string {
	if d == DelimiterTab {
		return `\t`
	}
	return string(rune(d))
}

// Format is what the sniffer learned about an extract.
type Format struct {
	LineEnding LineEnding `json:"lineEnding"`
	Delimiter  Delimiter  `json:"delimiter"`
	HasBOM     bool       `json:"hasBom"`
	Header     string     `json:"header"` // first line, BOM and terminator stripped
}

// FieldType represents the staging type of a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
)

// ColumnSpec describes one staging column. Source fields map onto columns by position.
type ColumnSpec struct {
	DBColumn string
	Type     FieldType
}

// StagingColumns lists the staging table columns in source field order.
var StagingColumns = []ColumnSpec{
	{DBColumn: "item_number", Type: FieldText},
	{DBColumn: "item_description", Type: FieldText},
	{DBColumn: "qty", Type: FieldNumeric},
	{DBColumn: "uom", Type: FieldText},
	{DBColumn: "locator", Type: FieldText},
	{DBColumn: "subinventory", Type: FieldText},
	{DBColumn: "planner", Type: FieldText},
	{DBColumn: "organization_code", Type: FieldText},
}

// ColumnNames returns the staging column names in positional order.
func ColumnNames() []string {
	names := make([]string, len(StagingColumns))
	for i, c := range StagingColumns {
		names[i] = c.DBColumn
	}
	return names
}

// TextColumns returns the staging columns normalised by trimming after a load.
func TextColumns() []string {
	var names []string
	for _, c := range StagingColumns {
		if c.Type == FieldText {
			names = append(names, c.DBColumn)
		}
	}
	return names
}

// StagingRow is one parsed data row of the extract.
// Qty is either a non-negative decimal or NULL.
type StagingRow struct {
	ItemNumber       string
	ItemDescription  string
	Qty              decimal.NullDecimal
	UOM              string
	Locator          string
	Subinventory     string
	Planner          string
	OrganizationCode string
}

// Values returns the row in StagingColumns order. A NULL quantity is nil.
func (r StagingRow) Values() []any {
	var qty any
	if r.Qty.Valid {
		qty = r.Qty.Decimal
	}
	return []any{
		r.ItemNumber, r.ItemDescription, qty, r.UOM,
		r.Locator, r.Subinventory, r.Planner, r.OrganizationCode,
	}
}

// RowSource streams staging rows to a store. It follows the bufio.Scanner
// contract: call Next until it returns false, then check Err.
type RowSource interface {
	Next() bool
	Row() StagingRow
	Err() error
}

// StagingStore replaces the staging table contents in one bulk operation:
// clear the table, ingest every row from rows, then trim text columns.
// It returns the number of rows ingested.
type StagingStore interface {
	ReplaceStaging(ctx context.Context, table string, rows RowSource) (int64, error)
}

// QuantityMode decides what happens to quantity text that is not a valid decimal.
type QuantityMode string

const (
	QuantityNull   QuantityMode = "null"   // store NULL and keep the row
	QuantityReject QuantityMode = "reject" // fail the load
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageTransport StageName = "transport"
	StageStability StageName = "stability"
	StageSniff     StageName = "sniff"
	StageSchema    StageName = "schema"
	StageLoad      StageName = "load"
)

// Stages lists every stage in execution order.
var Stages = []StageName{StageTransport, StageStability, StageSniff, StageSchema, StageLoad}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageResult records one stage of a run.
type StageResult struct {
	Stage     StageName     `json:"stage"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// LoadResult summarises a bulk load.
type LoadResult struct {
	RowsLoaded     int64 `json:"rowsLoaded"`
	NullQuantities int   `json:"nullQuantities"` // rows whose quantity was empty or coerced to NULL
	InvalidValues  int   `json:"invalidValues"`  // subset of NullQuantities coming from garbled text
}
