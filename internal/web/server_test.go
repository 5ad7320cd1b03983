package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/onhand/internal/core"
)

func newTestServer(t *testing.T) (*Server, *core.MemoryHistory, *core.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)
	history := core.NewMemoryHistory(0)
	return NewServer(history, reg), history, metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func finishedRun(rows int64, err error) *core.RunRecord {
	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	rec := core.NewRunRecord(start)
	rec.RowsLoaded = rows
	rec.Stages = []core.StageResult{{Stage: core.StageLoad, Status: core.StatusSucceeded, Duration: time.Second}}
	rec.Finish(start.Add(time.Minute), err)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestLastRun(t *testing.T) {
	s, history, _ := newTestServer(t)

	t.Run("before first run", func(t *testing.T) {
		rec := get(t, s, "/runs/last")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		var body ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Code != "NOT_FOUND" {
			t.Errorf("code = %q", body.Code)
		}
	})

	run := finishedRun(3, nil)
	if err := history.RecordRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}

	t.Run("after a run", func(t *testing.T) {
		rec := get(t, s, "/runs/last")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}

		var got core.RunRecord
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != run.ID || got.Status != core.RunSucceeded || got.RowsLoaded != 3 {
			t.Errorf("run = %+v", got)
		}
	})
}

func TestRecentRuns(t *testing.T) {
	s, history, _ := newTestServer(t)
	for i := 0; i < 4; i++ {
		history.RecordRun(context.Background(), finishedRun(int64(i), nil))
	}

	tests := []struct {
		path string
		want int
	}{
		{"/runs", 4},
		{"/runs?limit=2", 2},
		{"/runs?limit=0", 4},
		{"/runs?limit=abc", 4},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, s, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var got []core.RunRecord
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			if len(got) > 0 && got[0].RowsLoaded != 3 {
				t.Errorf("first run rows = %d, want newest (3)", got[0].RowsLoaded)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, metrics := newTestServer(t)
	metrics.ObserveRun(finishedRun(42, nil))

	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`onhand_runs_total{status="succeeded"} 1`,
		"onhand_rows_loaded 42",
		"onhand_last_success_timestamp_seconds",
		`onhand_stage_duration_seconds_count{stage="load"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := newTestServer(t)
	if rec := get(t, s, "/export"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _, _ := newTestServer(t)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Start("127.0.0.1:0"); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start after Shutdown = %v, want ErrServerClosed", err)
	}
}
