// Package fake provides a scripted in-process adapter for harness tests.
package fake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/geospeed/geospeed/backend"
)

// Step scripts the behavior of one invocation. When the step sequence is
// exhausted the last step repeats.
type Step struct {
	// Delay is slept (context-aware) before returning.
	Delay time.Duration
	// Hang blocks until the context is canceled and returns its error,
	// simulating a backend that never finishes.
	Hang bool
	// Err, when set, is returned after Delay.
	Err error
	// Outcome is returned on success; nil yields a minimal outcome.
	Outcome *backend.PipelineOutcome
	// ScratchFiles are created under the run's scratch dir before
	// returning, exercising cleanup.
	ScratchFiles []string
	// Hook, when set, runs first and can inspect the RunContext; a
	// non-nil result short-circuits the step.
	Hook func(ctx context.Context, rc *backend.RunContext) error
}

// Backend replays its steps, one per invocation.
type Backend struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

func New(steps ...Step) *Backend {
	return &Backend{steps: steps}
}

// Calls returns how many times Run was invoked, warm-ups included.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Backend) Run(ctx context.Context, rc *backend.RunContext) (*backend.PipelineOutcome, error) {
	b.mu.Lock()
	idx := b.calls
	b.calls++
	if idx >= len(b.steps) {
		idx = len(b.steps) - 1
	}
	var step Step
	if idx >= 0 {
		step = b.steps[idx]
	}
	b.mu.Unlock()

	if step.Hook != nil {
		if err := step.Hook(ctx, rc); err != nil {
			return nil, err
		}
	}

	for _, name := range step.ScratchFiles {
		path := filepath.Join(rc.ScratchDir, name)
		if err := os.WriteFile(path, []byte("scratch"), 0o644); err != nil {
			return nil, &backend.StageError{Stage: backend.StageLoad, Err: err}
		}
		rc.Cleanup.AddPath(path)
	}

	if step.Hang {
		<-ctx.Done()
		return nil, fmt.Errorf("pipeline interrupted: %w", ctx.Err())
	}

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("pipeline interrupted: %w", ctx.Err())
		}
	}

	if step.Err != nil {
		return nil, step.Err
	}

	if step.Outcome != nil {
		out := *step.Outcome
		return &out, nil
	}
	return &backend.PipelineOutcome{FeatureCount: -1, OutputBytes: -1}, nil
}
