package core

// history.go holds the record of each pipeline run and the sinks it is handed to.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord describes one pipeline run. It is appended to while the run is in
// flight and must not be modified after Finish.
type RunRecord struct {
	ID             uuid.UUID     `json:"id"`
	Status         RunStatus     `json:"status"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt,omitzero"`
	Source         string        `json:"source"`
	LocalPath      string        `json:"localPath"`
	BytesCopied    int64         `json:"bytesCopied"`
	Format         *Format       `json:"format,omitempty"`
	Columns        []string      `json:"columns,omitempty"`
	Stages         []StageResult `json:"stages"`
	RowsLoaded     int64         `json:"rowsLoaded"`
	NullQuantities int           `json:"nullQuantities"`
	InvalidValues  int           `json:"invalidValues"`
	Error          string        `json:"error,omitempty"`
	ErrorCode      string        `json:"errorCode,omitempty"`
}

// NewRunRecord starts a record with a fresh id.
func NewRunRecord(started time.Time) *RunRecord {
	return &RunRecord{
		ID:        uuid.New(),
		Status:    RunRunning,
		StartedAt: started,
	}
}

// Finish freezes the record with the run's final error, if any.
func (r *RunRecord) Finish(finished time.Time, err error) {
	r.FinishedAt = finished
	if err == nil {
		r.Status = RunSucceeded
		return
	}
	r.Status = RunFailed
	r.Error = err.Error()
	var se *StageError
	if errors.As(err, &se) {
		r.ErrorCode = se.Code
	} else {
		r.ErrorCode = UserMessageFor(err).Code
	}
}

// Duration is the wall time of a finished run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stage returns the result recorded for name.
func (r *RunRecord) Stage(name StageName) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Clone returns a deep copy safe to hand to readers.
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	c.Stages = append([]StageResult(nil), r.Stages...)
	c.Columns = append([]string(nil), r.Columns...)
	if r.Format != nil {
		f := *r.Format
		c.Format = &f
	}
	return &c
}

// RunRecorder receives every finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec *RunRecord) error
}

// MemoryHistory keeps the most recent runs in memory for the status server.
type MemoryHistory struct {
	mu   sync.RWMutex
	runs []*RunRecord // oldest first
	max  int
}

// DefaultHistorySize is used when NewMemoryHistory is given a non-positive size.
const DefaultHistorySize = 20

// NewMemoryHistory keeps up to size runs.
func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &MemoryHistory{max: size}
}

// RecordRun implements RunRecorder.
func (h *MemoryHistory) RecordRun(_ context.Context, rec *RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append(h.runs, rec.Clone())
	if len(h.runs) > h.max {
		h.runs = h.runs[len(h.runs)-h.max:]
	}
	return nil
}

// Last returns the most recent run, or false before the first run finishes.
func (h *MemoryHistory) Last() (*RunRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.runs) == 0 {
		return nil, false
	}
	return h.runs[len(h.runs)-1].Clone(), true
}

// Recent returns up to n runs, newest first.
func (h *MemoryHistory) Recent(n int) []*RunRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.runs) {
		n = len(h.runs)
	}
	out := make([]*RunRecord, 0, n)
	for i := len(h.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.runs[i].Clone())
	}
	return out
}
