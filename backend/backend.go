// Package backend defines the uniform contract every benchmark engine sits
// behind. A backend runs the same load-overlay-persist pipeline as every
// other backend; the harness only sees this package's types.
package backend

import (
	"context"
	"log/slog"
	"time"
)

// DatasetRef is an opaque handle to one input dataset: the data directory
// plus the layer (file name pattern) the backend should load from it. The
// harness never opens or validates the data itself.
type DatasetRef struct {
	Dir   string
	Layer string
}

// Capabilities declares engine traits the harness may act on.
type Capabilities struct {
	// Persistent marks engines that materialize their result through an
	// on-disk persisted mode rather than in memory.
	Persistent bool
	// LeaksScratch marks engines known to leave uniquely named temporary
	// files behind; their adapters must report them via the outcome payload
	// so the cleanup registry can reclaim them.
	LeaksScratch bool
}

// Spec identifies one benchmark target. Specs are built at configuration
// time and never mutated afterwards.
type Spec struct {
	Name         string
	Adapter      Adapter
	Capabilities Capabilities

	// Warmup and Measured override the executor's global run counts when
	// greater than zero.
	Warmup   int
	Measured int
}

// RunContext supplies one invocation's inputs, output destination and
// lifecycle hooks. Adapters must register every artifact they create with
// Cleanup so the harness can reclaim disk space even when the engine fails.
type RunContext struct {
	Inputs     []DatasetRef
	OutputPath string
	ScratchDir string
	Cleanup    *CleanupRegistry

	// TrackPID registers a spawned process with the memory sampler so the
	// whole child tree is included in peak readings. May be nil when
	// sampling is unavailable.
	TrackPID func(pid int)

	Logger *slog.Logger
}

// Track reports a spawned process to the sampler, if one is attached.
func (rc *RunContext) Track(pid int) {
	if rc.TrackPID != nil {
		rc.TrackPID(pid)
	}
}

// StageTimings holds per-stage elapsed times when the engine exposes them.
// Zero values mean the engine did not report that stage.
type StageTimings struct {
	Load      time.Duration
	Transform time.Duration
	Persist   time.Duration
}

// PipelineOutcome reports what a successful invocation produced.
// FeatureCount and OutputBytes are best-effort metadata; -1 means unknown.
type PipelineOutcome struct {
	Stages       StageTimings
	FeatureCount int64
	OutputBytes  int64
}

// Adapter is the single entry point of one engine. Run must block until the
// engine has fully materialized its output; lazy engines are forced to
// evaluate by the persist step, so timing is comparable across eager and
// lazy execution models. Errors returned from Run are always classified:
// a *StageError for pipeline failures, or an error wrapping the context's
// error when the invocation was cut short.
type Adapter interface {
	Run(ctx context.Context, rc *RunContext) (*PipelineOutcome, error)
}
