package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geospeed/geospeed/backend"
	"github.com/geospeed/geospeed/sampler"
)

// Default run counts, matching the historical manual protocol.
const (
	DefaultWarmup   = 3
	DefaultMeasured = 10
)

// Config holds executor-wide parameters. One Config serves every backend;
// per-backend overrides live on the Spec.
type Config struct {
	WarmupCount   int
	MeasuredCount int

	// Timeout bounds each invocation; zero means unbounded.
	Timeout time.Duration

	// SampleInterval for the memory sampler; zero selects the sampler
	// default.
	SampleInterval time.Duration

	// ScratchDir is the shared scratch area, namespaced per backend and
	// run index underneath.
	ScratchDir string

	// OutputDir receives each invocation's pipeline output file.
	OutputDir string

	// Inputs are handed unchanged to every adapter.
	Inputs []backend.DatasetRef

	// OnRecord, when set, is called with each measured record as it
	// completes, for progressive reporting.
	OnRecord func(Record)

	Logger *slog.Logger
}

// Executor runs one backend at a time, sequentially; concurrency inside an
// invocation is limited to the memory sampler, which only observes.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns an Executor. A MeasuredCount below one or a
// negative WarmupCount is a configuration error, not a runtime condition.
func New(cfg Config) (*Executor, error) {
	if cfg.MeasuredCount < 1 {
		return nil, fmt.Errorf("measured count must be at least 1, got %d", cfg.MeasuredCount)
	}
	if cfg.WarmupCount < 0 {
		return nil, fmt.Errorf("warmup count must not be negative, got %d", cfg.WarmupCount)
	}
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("scratch dir must be set")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.ScratchDir
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: cfg.Logger}, nil
}

// Execute drives spec through its warm-up and measured invocations and
// returns exactly the measured records, in run-index order, regardless of
// how many failed. Warm-up records are discarded entirely. The returned
// error is non-nil only for invalid specs or an outer context cancellation;
// per-invocation failures are captured in the records.
func (e *Executor) Execute(ctx context.Context, spec backend.Spec) ([]Record, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("backend spec has no name")
	}
	if spec.Adapter == nil {
		return nil, fmt.Errorf("backend %s has no adapter", spec.Name)
	}

	warmup := e.cfg.WarmupCount
	if spec.Warmup > 0 {
		warmup = spec.Warmup
	}
	measured := e.cfg.MeasuredCount
	if spec.Measured > 0 {
		measured = spec.Measured
	}

	logger := e.logger.With(slog.String("backend", spec.Name))

	for i := 0; i < warmup; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Info("warm-up run", slog.Int("index", i), slog.Int("of", warmup))
		e.runOnce(ctx, spec, logger, i, true)
	}

	records := make([]Record, 0, measured)
	for i := 0; i < measured; i++ {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		rec := e.runOnce(ctx, spec, logger, i, false)
		records = append(records, rec)
		if e.cfg.OnRecord != nil {
			e.cfg.OnRecord(rec)
		}
	}
	return records, nil
}

// runOnce performs one invocation: start sampler, run adapter, stop sampler,
// then release every registered artifact before returning, so the next run
// starts from a clean scratch area even after a failure or timeout.
func (e *Executor) runOnce(ctx context.Context, spec backend.Spec, logger *slog.Logger, idx int, warm bool) Record {
	scratch := filepath.Join(e.cfg.ScratchDir, fmt.Sprintf("%s-run%d", sanitizeName(spec.Name), idx))
	outPath := filepath.Join(e.cfg.OutputDir, fmt.Sprintf("%s-run%d.out", sanitizeName(spec.Name), idx))

	cleanup := backend.NewCleanupRegistry()
	cleanup.AddPath(scratch)
	cleanup.AddPath(outPath)

	rec := Record{
		Backend:      spec.Name,
		RunIndex:     idx,
		FeatureCount: -1,
		OutputBytes:  -1,
	}

	if err := firstErr(os.MkdirAll(scratch, 0o755), os.MkdirAll(e.cfg.OutputDir, 0o755)); err != nil {
		rec.Outcome = OutcomeFailure
		rec.Failure = &FailureDetail{
			Kind:    FailLoad,
			Message: fmt.Sprintf("create scratch dir: %v", err),
		}
		e.release(cleanup, logger, &rec)
		return rec
	}

	smp := sampler.New(e.cfg.SampleInterval, logger)
	memOK := true
	if err := smp.Start(); err != nil {
		// Degrade: the run proceeds, memory is reported unavailable.
		memOK = false
		logger.Warn("memory sampling unavailable", slog.String("error", err.Error()))
	}

	rc := &backend.RunContext{
		Inputs:     e.cfg.Inputs,
		OutputPath: outPath,
		ScratchDir: scratch,
		Cleanup:    cleanup,
		Logger:     logger,
	}
	if memOK {
		rc.TrackPID = smp.Track
	}

	runCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	outcome, runErr := spec.Adapter.Run(runCtx, rc)
	duration := time.Since(start)

	var peak sampler.Peak
	if memOK {
		peak = smp.Stop()
	}

	rec.Start = start
	rec.End = start.Add(duration)
	rec.Duration = duration
	rec.PeakRSSBytes = peak.RSSBytes
	rec.AvailDropBytes = peak.AvailDropBytes
	rec.MemoryOK = memOK

	if runErr != nil {
		rec.Outcome = OutcomeFailure
		rec.Failure = classifyError(runErr)
		logger.Info("run failed",
			slog.Int("index", idx),
			slog.Bool("warmup", warm),
			slog.String("kind", string(rec.Failure.Kind)),
			slog.String("error", rec.Failure.Message),
		)
	} else {
		rec.Outcome = OutcomeSuccess
		if outcome != nil {
			rec.Stages = outcome.Stages
			rec.FeatureCount = outcome.FeatureCount
			rec.OutputBytes = outcome.OutputBytes
		}
		logger.Info("run finished",
			slog.Int("index", idx),
			slog.Bool("warmup", warm),
			slog.Duration("duration", duration),
			slog.Uint64("peak_rss_bytes", peak.RSSBytes),
		)
	}

	e.release(cleanup, logger, &rec)
	return rec
}

// release reclaims every registered artifact. Cleanup failures do not
// invalidate the measurement; they are logged and recorded as caveats.
func (e *Executor) release(cleanup *backend.CleanupRegistry, logger *slog.Logger, rec *Record) {
	for _, err := range cleanup.Release() {
		logger.Warn("cleanup failed", slog.String("error", err.Error()))
		rec.Caveats = append(rec.Caveats, fmt.Sprintf("cleanup: %v", err))
	}
}

// classifyError maps an adapter error to a failure detail. Conforming
// adapters return either a *backend.StageError or an error wrapping the
// context error for timeouts.
func classifyError(err error) *FailureDetail {
	var se *backend.StageError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FailureDetail{Kind: FailTimeout, Message: err.Error()}
	case errors.As(err, &se):
		return &FailureDetail{
			Kind:    FailureKind(se.Stage),
			Message: se.Error(),
			LogTail: se.LogTail,
		}
	default:
		return &FailureDetail{Kind: FailUnknown, Message: err.Error()}
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
