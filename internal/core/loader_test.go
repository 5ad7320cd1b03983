package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// memoryStore is a StagingStore that keeps the staging table in memory.
type memoryStore struct {
	mu       sync.Mutex
	rows     []StagingRow
	replaces int
	err      error // returned after ingest when set
}

func (s *memoryStore) ReplaceStaging(ctx context.Context, table string, src RowSource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaces++
	s.rows = nil
	for src.Next() {
		s.rows = append(s.rows, src.Row())
	}
	if err := src.Err(); err != nil {
		return int64(len(s.rows)), err
	}
	if s.err != nil {
		return int64(len(s.rows)), s.err
	}

	// trim text columns, as TRIM() does in SQL
	for i := range s.rows {
		r := &s.rows[i]
		for _, p := range []*string{&r.ItemNumber, &r.ItemDescription, &r.UOM, &r.Locator, &r.Subinventory, &r.Planner, &r.OrganizationCode} {
			*p = strings.Trim(*p, " ")
		}
	}
	return int64(len(s.rows)), nil
}

func (s *memoryStore) snapshot() []StagingRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StagingRow(nil), s.rows...)
}

const testHeader = "Item_Number,Item_Description,Qty,UOM,Locator,Subinventory,Planner,Organization_Code"

func TestLoaderLoad(t *testing.T) {
	content := testHeader + "\n" +
		"A1 ,Widget,\"1,234\",EA,L1,FG,PL1,M1\n" +
		"A2,Gadget,,EA,L2,FG,PL2,M1\n" +
		"A3,Gizmo,abc,EA,L3,FG,PL3,M1,extra\n"
	path := writeTemp(t, content)
	f, err := Sniff(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	store := &memoryStore{}
	l := &Loader{Store: store, Table: "existencias_staging", Mode: QuantityNull}

	res, err := l.Load(context.Background(), path, f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if res.RowsLoaded != 3 {
		t.Errorf("RowsLoaded = %d, want 3", res.RowsLoaded)
	}
	if res.NullQuantities != 2 || res.InvalidValues != 1 {
		t.Errorf("NullQuantities = %d, InvalidValues = %d, want 2 and 1", res.NullQuantities, res.InvalidValues)
	}

	rows := store.snapshot()
	if rows[0].ItemNumber != "A1" {
		t.Errorf("ItemNumber = %q, want trimmed A1", rows[0].ItemNumber)
	}
	if !rows[0].Qty.Valid || rows[0].Qty.Decimal.String() != "1234" {
		t.Errorf("row 1 qty = %v, want 1234", rows[0].Qty)
	}
	if rows[1].Qty.Valid || rows[2].Qty.Valid {
		t.Errorf("rows 2 and 3 qty should be NULL")
	}
	if rows[2].OrganizationCode != "M1" {
		t.Errorf("extra trailing field shifted columns: %+v", rows[2])
	}
}

func TestLoaderRejectMode(t *testing.T) {
	content := testHeader + "\nA1,Widget,10,EA,L1,FG,PL1,M1\nA2,Gadget,abc,EA,L2,FG,PL2,M1\n"
	path := writeTemp(t, content)
	f, _ := Sniff(path, 0)

	l := &Loader{Store: &memoryStore{}, Table: "t", Mode: QuantityReject}
	_, err := l.Load(context.Background(), path, f)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("Load() error = %v, want ErrLoad", err)
	}

	var se *StageError
	if !errors.As(err, &se) || se.Code != "LOAD002" {
		t.Fatalf("error = %v, want LOAD002", err)
	}
	var re *RowError
	if !errors.As(err, &re) || re.Line != 3 {
		t.Errorf("RowError = %v, want line 3", re)
	}
	if !strings.Contains(err.Error(), `"abc"`) {
		t.Errorf("error %q does not name the raw value", err)
	}
}

func TestLoaderShortRow(t *testing.T) {
	content := testHeader + "\nA1,Widget,10,EA,L1,FG,PL1,M1\nA2,Gadget,5\n"
	path := writeTemp(t, content)
	f, _ := Sniff(path, 0)

	l := &Loader{Store: &memoryStore{}, Table: "t", Mode: QuantityNull}
	_, err := l.Load(context.Background(), path, f)

	var se *StageError
	if !errors.As(err, &se) || se.Code != "LOAD001" {
		t.Fatalf("Load() error = %v, want LOAD001", err)
	}
	var re *RowError
	if !errors.As(err, &re) || re.Line != 3 {
		t.Errorf("RowError = %v, want line 3", re)
	}
}

func TestLoaderStoreFailure(t *testing.T) {
	path := writeTemp(t, testHeader+"\nA1,Widget,10,EA,L1,FG,PL1,M1\n")
	f, _ := Sniff(path, 0)

	storeErr := errors.New("connection reset")
	l := &Loader{Store: &memoryStore{err: storeErr}, Table: "existencias_staging"}
	_, err := l.Load(context.Background(), path, f)

	if !errors.Is(err, ErrLoad) || !errors.Is(err, storeErr) {
		t.Fatalf("Load() error = %v, want ErrLoad wrapping the store error", err)
	}
	var se *StageError
	if errors.As(err, &se) && se.Code != "LOAD003" {
		t.Errorf("code = %s, want LOAD003", se.Code)
	}
}

func TestLoaderTabExtract(t *testing.T) {
	header := strings.ReplaceAll(testHeader, ",", "\t")
	content := header + "\r\nA1\t\"Bolt, 10mm\"\t2,500\tEA\tL1\tFG\tPL1\tM1\r\n"
	path := writeTemp(t, content)
	f, err := Sniff(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	store := &memoryStore{}
	l := &Loader{Store: store, Table: "t"}
	if _, err := l.Load(context.Background(), path, f); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	rows := store.snapshot()
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].ItemDescription != `"Bolt, 10mm"` {
		t.Errorf("ItemDescription = %q, tab extracts keep quotes", rows[0].ItemDescription)
	}
	if rows[0].Qty.Decimal.String() != "2500" {
		t.Errorf("Qty = %s, want 2500", rows[0].Qty.Decimal)
	}
	if rows[0].OrganizationCode != "M1" {
		t.Errorf("OrganizationCode = %q, CR should not leak into the last field", rows[0].OrganizationCode)
	}
}

func TestLoaderEdgeRows(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		mode     QuantityMode
		wantRows int64
		wantNull int
		wantCode string // empty when the load succeeds
	}{
		{
			name:     "out of range quantity becomes NULL",
			body:     "A1,Widget,\"1,000,000,000\",EA,L1,FG,PL1,M1\nA2,Gadget,5,EA,L2,FG,PL2,M1\n",
			mode:     QuantityNull,
			wantRows: 2,
			wantNull: 1,
		},
		{
			name:     "out of range quantity rejected",
			body:     "A1,Widget,\"1,000,000,000\",EA,L1,FG,PL1,M1\n",
			mode:     QuantityReject,
			wantCode: "LOAD002",
		},
		{
			name:     "whitespace-only line skipped",
			body:     "A1,Widget,1,EA,L1,FG,PL1,M1\n   \nA2,Gadget,2,EA,L2,FG,PL2,M1\n",
			mode:     QuantityNull,
			wantRows: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, testHeader+"\n"+tt.body)
			f, err := Sniff(path, 0)
			if err != nil {
				t.Fatal(err)
			}

			l := &Loader{Store: &memoryStore{}, Table: "t", Mode: tt.mode}
			res, err := l.Load(context.Background(), path, f)

			if tt.wantCode != "" {
				var se *StageError
				if !errors.As(err, &se) || se.Code != tt.wantCode {
					t.Fatalf("Load() error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if res.RowsLoaded != tt.wantRows || res.NullQuantities != tt.wantNull {
				t.Errorf("RowsLoaded = %d, NullQuantities = %d, want %d and %d",
					res.RowsLoaded, res.NullQuantities, tt.wantRows, tt.wantNull)
			}
		})
	}
}
