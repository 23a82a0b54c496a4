// Package process adapts an external backend command to the backend.Adapter
// contract. Each engine ships as an opaque executable; this adapter injects
// dataset locations through the environment, waits for full materialization,
// parses the engine's outcome payload from stdout, and classifies failures
// by pipeline stage.
package process

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/geospeed/geospeed/backend"
)

// Environment variables injected into every backend command.
const (
	EnvDataDir    = "GEOSPEED_DATA_DIR"
	EnvInputA     = "GEOSPEED_INPUT_A"
	EnvInputB     = "GEOSPEED_INPUT_B"
	EnvOutput     = "GEOSPEED_OUTPUT"
	EnvScratchDir = "GEOSPEED_SCRATCH_DIR"
)

// logTailLines bounds the diagnostic output kept from a failed run.
const logTailLines = 20

// waitDelay gives a killed process group time to be reaped before Wait
// gives up on its pipes.
const waitDelay = 5 * time.Second

// Config describes how to invoke one backend command.
type Config struct {
	// Command is the argv of the backend executable, e.g.
	// ["python", "geospeed/duckdb_speed.py"].
	Command []string
	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
	// Dir is the working directory; empty means the harness's own.
	Dir string
}

// Backend runs one configured command per invocation.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a subprocess-backed adapter for the named engine.
func New(name string, cfg Config, logger *slog.Logger) (*Backend, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("backend %s: empty command", name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		logger: logger.With(slog.String("backend", name)),
	}, nil
}

// Run implements backend.Adapter. The command's entire process group is
// killed when ctx expires, so engine worker pools cannot outlive a timed-out
// invocation.
func (b *Backend) Run(ctx context.Context, rc *backend.RunContext) (*backend.PipelineOutcome, error) {
	cmd := exec.CommandContext(ctx, b.cfg.Command[0], b.cfg.Command[1:]...)
	cmd.Dir = b.cfg.Dir
	cmd.Env = b.environ(rc)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	b.logger.Debug("starting backend command",
		slog.String("command", strings.Join(b.cfg.Command, " ")),
		slog.String("output", rc.OutputPath),
	)

	if err := cmd.Start(); err != nil {
		return nil, &backend.StageError{
			Stage: backend.StageLoad,
			Err:   fmt.Errorf("start command: %w", err),
		}
	}
	rc.Track(cmd.Process.Pid)

	runErr := cmd.Wait()

	// Snapshot once: payload parsing and log tails read the same combined
	// output, and the buffer can only be consumed one time.
	combined := output.String()

	payload, payloadErr := parsePayload(strings.NewReader(combined))
	if payload != nil {
		registerScratch(rc, payload.Scratch)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("command terminated: %w", ctxErr)
	}

	if runErr != nil {
		stage, detail := classifyFailure(payload, runErr)
		return nil, &backend.StageError{
			Stage:   stage,
			Err:     detail,
			LogTail: tailLines(combined, logTailLines),
		}
	}

	if payloadErr != nil {
		// The engine exited cleanly but never reported an outcome; the
		// write cannot be trusted to have happened.
		return nil, &backend.StageError{
			Stage:   backend.StagePersist,
			Err:     fmt.Errorf("missing outcome payload: %w", payloadErr),
			LogTail: tailLines(combined, logTailLines),
		}
	}

	return b.outcome(rc, payload), nil
}

func (b *Backend) environ(rc *backend.RunContext) []string {
	env := append(os.Environ(), b.cfg.Env...)
	if len(rc.Inputs) > 0 {
		env = append(env,
			EnvDataDir+"="+rc.Inputs[0].Dir,
			EnvInputA+"="+rc.Inputs[0].Layer,
		)
	}
	if len(rc.Inputs) > 1 {
		env = append(env, EnvInputB+"="+rc.Inputs[1].Layer)
	}
	env = append(env,
		EnvOutput+"="+rc.OutputPath,
		EnvScratchDir+"="+rc.ScratchDir,
	)
	return env
}

// outcome converts the payload into a PipelineOutcome, filling output size
// from the filesystem when the engine did not report it.
func (b *Backend) outcome(rc *backend.RunContext, p *payload) *backend.PipelineOutcome {
	out := &backend.PipelineOutcome{
		Stages: backend.StageTimings{
			Load:      secondsToDuration(p.LoadSeconds),
			Transform: secondsToDuration(p.TransformSeconds),
			Persist:   secondsToDuration(p.PersistSeconds),
		},
		FeatureCount: p.Features,
		OutputBytes:  p.OutputBytes,
	}
	if out.OutputBytes < 0 {
		if info, err := os.Stat(rc.OutputPath); err == nil {
			out.OutputBytes = info.Size()
		}
	}
	return out
}

// registerScratch adds engine-reported stray artifacts to the cleanup
// registry. Relative paths are resolved against the scratch dir.
func registerScratch(rc *backend.RunContext, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(rc.ScratchDir, p)
		}
		rc.Cleanup.AddPath(p)
	}
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
