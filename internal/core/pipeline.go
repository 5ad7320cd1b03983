package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/onhand/internal/config"
	"github.com/JonMunkholm/onhand/internal/logging"
	"github.com/JonMunkholm/onhand/internal/transport"
)

// PipelineDeps are the collaborators a Pipeline cannot build from config alone.
type PipelineDeps struct {
	Source    transport.Source
	Store     StagingStore
	Recorders []RunRecorder // every finished run is handed to each
	Metrics   *Metrics      // optional
}

// Pipeline runs the five ingestion stages in order. Each stage hard-depends on
// the one before it; the first failure ends the run and the remaining stages
// are recorded as skipped.
type Pipeline struct {
	stager     *Stager
	stability  *StabilityDetector
	sniffBytes int
	expected   []string
	loader     *Loader
	recorders  []RunRecorder
	metrics    *Metrics
	now        func() time.Time

	mu sync.Mutex // held for the duration of a run
}

// NewPipeline wires a pipeline from configuration.
func NewPipeline(cfg *config.Config, deps PipelineDeps) *Pipeline {
	return &Pipeline{
		stager: &Stager{
			Source:    deps.Source,
			LocalPath: cfg.Local.Path,
		},
		stability: &StabilityDetector{
			Timeout:  cfg.Stability.Timeout,
			Interval: cfg.Stability.Interval,
		},
		sniffBytes: cfg.Schema.SniffBytes,
		expected:   append([]string(nil), cfg.Schema.ExpectedColumns...),
		loader: &Loader{
			Store: deps.Store,
			Table: cfg.Database.StagingTable,
			Mode:  ParseQuantityMode(cfg.Load.InvalidQuantity),
		},
		recorders: deps.Recorders,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

type stageFunc func(ctx context.Context, rec *RunRecord) (string, error)

// Run executes one complete pipeline run. It returns ErrRunInProgress without
// doing anything if another run holds the pipeline. The returned record is
// non-nil whenever a run took place, successful or not.
func (p *Pipeline) Run(ctx context.Context) (*RunRecord, error) {
	if !p.mu.TryLock() {
		logging.FromContext(ctx).Warn("run skipped", "reason", ErrRunInProgress.Error())
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	rec := NewRunRecord(p.now())
	rec.Source = p.stager.Source.String()
	rec.LocalPath = p.stager.LocalPath

	ctx = logging.ContextWithRunID(ctx, rec.ID.String())
	log := logging.FromContext(ctx)
	log.Info("run started", "source", rec.Source, "local", rec.LocalPath)

	err := p.execute(ctx, rec)
	rec.Finish(p.now(), err)

	if err != nil {
		msg := UserMessageFor(err)
		log.Error("run failed",
			"code", rec.ErrorCode,
			"error", err,
			"action", msg.Action,
			"duration_ms", rec.Duration().Milliseconds(),
		)
	} else {
		log.Info("run finished",
			"rows_loaded", rec.RowsLoaded,
			"null_quantities", rec.NullQuantities,
			"duration_ms", rec.Duration().Milliseconds(),
		)
	}

	p.metrics.ObserveRun(rec)

	recordCtx := context.WithoutCancel(ctx)
	for _, r := range p.recorders {
		if rerr := r.RecordRun(recordCtx, rec); rerr != nil {
			log.Warn("run record not saved", "error", rerr)
		}
	}
	return rec, err
}

func (p *Pipeline) execute(ctx context.Context, rec *RunRecord) error {
	steps := []struct {
		name StageName
		fn   stageFunc
	}{
		{StageTransport, p.copyExtract},
		{StageStability, p.waitStable},
		{StageSniff, p.sniff},
		{StageSchema, p.validate},
		{StageLoad, p.load},
	}

	for i, s := range steps {
		if err := p.runStage(ctx, rec, s.name, s.fn); err != nil {
			for _, rest := range steps[i+1:] {
				rec.Stages = append(rec.Stages, StageResult{Stage: rest.name, Status: StatusSkipped})
			}
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, rec *RunRecord, name StageName, fn stageFunc) error {
	log := logging.WithFields(ctx, "stage", string(name))
	log.Info("stage started")

	start := p.now()
	detail, err := fn(ctx, rec)
	result := StageResult{
		Stage:     name,
		StartedAt: start,
		Duration:  p.now().Sub(start),
		Detail:    detail,
	}

	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		rec.Stages = append(rec.Stages, result)

		code := ""
		var se *StageError
		if errors.As(err, &se) {
			code = se.Code
		}
		log.Error("stage failed", "code", code, "error", err, "duration_ms", result.Duration.Milliseconds())
		return err
	}

	result.Status = StatusSucceeded
	rec.Stages = append(rec.Stages, result)
	log.Info("stage succeeded", "detail", detail, "duration_ms", result.Duration.Milliseconds())
	return nil
}

func (p *Pipeline) copyExtract(ctx context.Context, rec *RunRecord) (string, error) {
	n, err := p.stager.Stage(ctx)
	rec.BytesCopied = n
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("copied %d bytes from %s to %s", n, rec.Source, rec.LocalPath), nil
}

func (p *Pipeline) waitStable(ctx context.Context, rec *RunRecord) (string, error) {
	if err := p.stability.WaitStable(ctx, rec.LocalPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("size unchanged across %d samples", StableSamples), nil
}

func (p *Pipeline) sniff(ctx context.Context, rec *RunRecord) (string, error) {
	f, err := Sniff(rec.LocalPath, p.sniffBytes)
	if err != nil {
		return "", err
	}
	rec.Format = &f

	log := logging.WithFields(ctx, "stage", string(StageSniff))
	log.Info("line ending detected", "line_ending", f.LineEnding.String())
	log.Info("delimiter detected", "delimiter", f.Delimiter.String(), "bom", f.HasBOM)
	return fmt.Sprintf("line ending %s, delimiter %s", f.LineEnding, f.Delimiter), nil
}

func (p *Pipeline) validate(ctx context.Context, rec *RunRecord) (string, error) {
	log := logging.WithFields(ctx, "stage", string(StageSchema))

	cols, err := ValidateHeader(rec.LocalPath, *rec.Format, p.expected)
	rec.Columns = cols
	if err != nil {
		var mc *MissingColumnsError
		if errors.As(err, &mc) {
			log.Error("missing columns",
				"missing", strings.Join(mc.Missing, ", "),
				"expected", strings.Join(p.expected, ", "),
				"observed", strings.Join(mc.Observed, ", "),
			)
		}
		return "", err
	}

	log.Info("header ok", "columns", strings.Join(cols, ", "))
	return fmt.Sprintf("%d columns, %d expected present", len(cols), len(p.expected)), nil
}

func (p *Pipeline) load(ctx context.Context, rec *RunRecord) (string, error) {
	res, err := p.loader.Load(ctx, rec.LocalPath, *rec.Format)
	rec.RowsLoaded = res.RowsLoaded
	rec.NullQuantities = res.NullQuantities
	rec.InvalidValues = res.InvalidValues
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d rows into %s (%d null quantities)", res.RowsLoaded, p.loader.Table, res.NullQuantities), nil
}
