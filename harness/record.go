// Package harness drives backend adapters through warm-up and measured
// invocations, measuring wall time and peak memory per run with guaranteed
// per-run cleanup.
package harness

import (
	"time"

	"github.com/geospeed/geospeed/backend"
)

// Outcome of one invocation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// FailureKind categorizes why an invocation failed.
type FailureKind string

const (
	FailLoad      FailureKind = "load"
	FailTransform FailureKind = "transform"
	FailPersist   FailureKind = "persist"
	FailTimeout   FailureKind = "timeout"
	// FailUnknown covers errors an adapter let escape unclassified; it
	// should not happen with conforming adapters.
	FailUnknown FailureKind = "unknown"
)

// FailureDetail captures why a run failed, for diagnostic display.
type FailureDetail struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	LogTail []string    `json:"log_tail,omitempty"`
}

// Record is one measured invocation of a backend. Records are produced in
// monotonically increasing RunIndex order and are immutable once returned.
//
// Duration and memory on a failure record are best-effort partials; only
// success records carry authoritative measurements, and the aggregator
// filters on Outcome accordingly.
type Record struct {
	Backend  string `json:"backend"`
	RunIndex int    `json:"run_index"`

	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`

	// PeakRSSBytes is the sampler's peak reading; MemoryOK is false when
	// sampling could not be established and the value must be treated as
	// unavailable rather than zero.
	PeakRSSBytes   uint64 `json:"peak_rss_bytes"`
	AvailDropBytes uint64 `json:"avail_drop_bytes,omitempty"`
	MemoryOK       bool   `json:"memory_ok"`

	Outcome Outcome        `json:"outcome"`
	Failure *FailureDetail `json:"failure,omitempty"`

	Stages       backend.StageTimings `json:"stage_timings"`
	FeatureCount int64                `json:"features,omitempty"`
	OutputBytes  int64                `json:"output_bytes,omitempty"`

	// Caveats lists non-fatal problems (e.g. cleanup failures) that do
	// not invalidate the measurement but must surface in the report.
	Caveats []string `json:"caveats,omitempty"`
}
