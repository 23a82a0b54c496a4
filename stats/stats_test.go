package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geospeed/geospeed/backend"
	"github.com/geospeed/geospeed/harness"
)

func successRecord(idx int, d time.Duration, peakMB uint64) harness.Record {
	return harness.Record{
		Backend:      "x",
		RunIndex:     idx,
		Duration:     d,
		PeakRSSBytes: peakMB * 1024 * 1024,
		MemoryOK:     true,
		Outcome:      harness.OutcomeSuccess,
	}
}

func failureRecord(idx int, kind harness.FailureKind) harness.Record {
	return harness.Record{
		Backend:  "x",
		RunIndex: idx,
		Outcome:  harness.OutcomeFailure,
		Failure:  &harness.FailureDetail{Kind: kind, Message: "boom"},
	}
}

func TestAggregateTallies(t *testing.T) {
	records := []harness.Record{
		successRecord(0, time.Second, 100),
		failureRecord(1, harness.FailTransform),
		successRecord(2, 3*time.Second, 120),
	}

	agg := Aggregate("x", records)
	assert.Equal(t, 3, agg.Attempted)
	assert.Equal(t, 2, agg.Succeeded)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, agg.Attempted, agg.Succeeded+agg.Failed)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, harness.FailTransform, agg.Failures[0].Kind)
}

func TestAggregateStatistics(t *testing.T) {
	records := []harness.Record{
		successRecord(0, time.Second, 100),
		successRecord(1, 2*time.Second, 200),
		successRecord(2, 3*time.Second, 300),
	}

	agg := Aggregate("x", records)
	require.True(t, agg.DurationSeconds.Available)
	assert.InDelta(t, 2.0, agg.DurationSeconds.Mean, 1e-9)
	assert.InDelta(t, 1.0, agg.DurationSeconds.Std, 1e-9)
	assert.InDelta(t, 1.0, agg.DurationSeconds.Min, 1e-9)
	assert.InDelta(t, 3.0, agg.DurationSeconds.Max, 1e-9)

	require.True(t, agg.PeakRSSMB.Available)
	assert.InDelta(t, 200.0, agg.PeakRSSMB.Mean, 1e-9)
	assert.InDelta(t, 300.0, agg.PeakRSSMB.Max, 1e-9)
}

func TestSingleMeasurementStdIsZero(t *testing.T) {
	agg := Aggregate("x", []harness.Record{successRecord(0, 1500*time.Millisecond, 80)})

	require.True(t, agg.DurationSeconds.Available)
	assert.InDelta(t, 1.5, agg.DurationSeconds.Mean, 1e-9)
	assert.Zero(t, agg.DurationSeconds.Std)
}

func TestAllFailedReportsUnavailableNotZero(t *testing.T) {
	agg := Aggregate("x", []harness.Record{
		failureRecord(0, harness.FailTimeout),
		failureRecord(1, harness.FailTimeout),
	})

	assert.Equal(t, 2, agg.Failed)
	assert.Zero(t, agg.Succeeded)
	assert.False(t, agg.DurationSeconds.Available)
	assert.False(t, agg.PeakRSSMB.Available)
	assert.Len(t, agg.Failures, 2)
}

func TestFailurePartialsNeverEnterStatistics(t *testing.T) {
	// A failure record with best-effort duration/memory must not shift the
	// statistics of the successful runs.
	partial := failureRecord(1, harness.FailPersist)
	partial.Duration = time.Hour
	partial.PeakRSSBytes = 1 << 40
	partial.MemoryOK = true

	agg := Aggregate("x", []harness.Record{
		successRecord(0, time.Second, 100),
		partial,
	})

	assert.InDelta(t, 1.0, agg.DurationSeconds.Mean, 1e-9)
	assert.InDelta(t, 100.0, agg.PeakRSSMB.Mean, 1e-9)
}

func TestAggregateAvailDropAndStageTimings(t *testing.T) {
	a := successRecord(0, 4*time.Second, 100)
	a.AvailDropBytes = 512 * 1024 * 1024
	a.Stages = backend.StageTimings{
		Load:      time.Second,
		Transform: 2 * time.Second,
		Persist:   time.Second,
	}
	b := successRecord(1, 6*time.Second, 120)
	b.AvailDropBytes = 1024 * 1024 * 1024
	b.Stages = backend.StageTimings{
		Load:      time.Second,
		Transform: 4 * time.Second,
		Persist:   time.Second,
	}

	agg := Aggregate("x", []harness.Record{a, b})
	require.True(t, agg.AvailDropMB.Available)
	assert.InDelta(t, 768.0, agg.AvailDropMB.Mean, 1e-9)

	require.True(t, agg.StageSeconds.Transform.Available)
	assert.InDelta(t, 3.0, agg.StageSeconds.Transform.Mean, 1e-9)
	assert.InDelta(t, 1.0, agg.StageSeconds.Load.Mean, 1e-9)
	assert.InDelta(t, 1.0, agg.StageSeconds.Persist.Mean, 1e-9)
}

func TestStageTimingsUnavailableWhenNotReported(t *testing.T) {
	// An engine that never reports stage timings leaves them zero; the
	// aggregate must say "unavailable" rather than mean-of-zeros.
	agg := Aggregate("x", []harness.Record{
		successRecord(0, time.Second, 100),
		successRecord(1, 2*time.Second, 110),
	})

	assert.False(t, agg.StageSeconds.Load.Available)
	assert.False(t, agg.StageSeconds.Transform.Available)
	assert.False(t, agg.StageSeconds.Persist.Available)
}

func TestMemoryUnavailableWhenSamplerFailed(t *testing.T) {
	rec := successRecord(0, time.Second, 0)
	rec.MemoryOK = false

	agg := Aggregate("x", []harness.Record{rec})
	assert.True(t, agg.DurationSeconds.Available)
	assert.False(t, agg.PeakRSSMB.Available)
}

func TestCaveatsCarryThrough(t *testing.T) {
	rec := successRecord(0, time.Second, 50)
	rec.Caveats = []string{"cleanup: remove tmp: permission denied"}

	agg := Aggregate("x", []harness.Record{rec})
	assert.Equal(t, rec.Caveats, agg.Caveats)
}
