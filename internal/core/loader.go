package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/onhand/internal/logging"
)

// Loader replaces the staging table with the data rows of an extract.
type Loader struct {
	Store StagingStore
	Table string
	Mode  QuantityMode
}

// Load parses path using f and hands the rows to the store, which clears the
// staging table, ingests the rows and trims text columns. Any failure is a
// Load Error; a store failure may leave the staging table empty or partial.
func (l *Loader) Load(ctx context.Context, path string, f Format) (LoadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return LoadResult{}, stageErr(StageLoad, ErrLoad, "LOAD003", path, fmt.Errorf("open extract: %w", err))
	}
	defer file.Close()

	src := &rowSource{
		reader: NewRowReader(file, f),
		mode:   l.Mode,
		path:   path,
		log:    logging.FromContext(ctx),
	}

	n, err := l.Store.ReplaceStaging(ctx, l.Table, src)
	result := LoadResult{
		RowsLoaded:     n,
		NullQuantities: src.nulls,
		InvalidValues:  src.invalid,
	}

	// A parse failure aborts the store's ingest; report it rather than the store's view of it.
	if src.err != nil {
		return result, src.err
	}
	if err != nil {
		return result, stageErr(StageLoad, ErrLoad, "LOAD003", path, fmt.Errorf("replace %s: %w", l.Table, err))
	}
	return result, nil
}

// rowSource adapts a RowReader to the RowSource contract, coercing each record.
type rowSource struct {
	reader *RowReader
	mode   QuantityMode
	path   string
	log    *slog.Logger

	row     StagingRow
	err     error
	nulls   int
	invalid int
}

func (s *rowSource) Next() bool {
	if s.err != nil {
		return false
	}

	fields, line, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		s.err = stageErr(StageLoad, ErrLoad, "LOAD001", s.path, &RowError{Line: line, Reason: err.Error()})
		return false
	}

	row, err := s.coerce(fields, line)
	if err != nil {
		s.err = err
		return false
	}
	s.row = row
	return true
}

func (s *rowSource) Row() StagingRow { return s.row }

func (s *rowSource) Err() error { return s.err }

func (s *rowSource) coerce(fields []string, line int) (StagingRow, error) {
	if len(fields) < len(StagingColumns) {
		return StagingRow{}, stageErr(StageLoad, ErrLoad, "LOAD001", s.path, &RowError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, found %d", len(StagingColumns), len(fields)),
		})
	}

	qty, err := ParseQuantity(fields[2])
	if err != nil {
		if s.mode == QuantityReject {
			return StagingRow{}, stageErr(StageLoad, ErrLoad, "LOAD002", s.path, &RowError{Line: line, Reason: err.Error()})
		}
		s.invalid++
		s.log.Warn("quantity coerced to NULL", "line", line, "value", fields[2])
	}
	if !qty.Valid {
		s.nulls++
	}

	return StagingRow{
		ItemNumber:       fields[0],
		ItemDescription:  fields[1],
		Qty:              qty,
		UOM:              fields[3],
		Locator:          fields[4],
		Subinventory:     fields[5],
		Planner:          fields[6],
		OrganizationCode: fields[7],
	}, nil
}
