// Package main provides the CLI entry point for geospeed, a benchmark
// harness that drives the same geospatial overlay pipeline through multiple
// backend engines and compares their wall time and peak memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/geospeed/geospeed/backend"
	"github.com/geospeed/geospeed/backend/process"
	"github.com/geospeed/geospeed/config"
	"github.com/geospeed/geospeed/dataset"
	"github.com/geospeed/geospeed/harness"
	"github.com/geospeed/geospeed/report"
	"github.com/geospeed/geospeed/stats"
)

const version = "0.3.0"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "geospeed",
		Short: "Geospatial overlay benchmark harness",
		Long: `Geospeed runs the same load-overlay-persist pipeline through multiple
backend engines (in-memory dataframe, partitioned dataframe, embedded
database, distributed cluster), measures wall time and peak memory per run,
and emits a comparison report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath     string
		dataDir        string
		backendFilter  []string
		warmup         int
		measured       int
		timeout        time.Duration
		sampleInterval time.Duration
		scratchDir     string
		outputDir      string
		outputJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the overlay benchmark across configured backends",
		Long: `Load the benchmark configuration, discover the input datasets, run every
registered backend through its warm-up and measured invocations, and write
the comparison report. Exits 0 even when individual backends fail: a backend
that cannot run is itself a reportable result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				cfg.Data.Dir = dataDir
			}
			if flags.Changed("warmup") {
				cfg.Runs.Warmup = warmup
			}
			if flags.Changed("measured") {
				cfg.Runs.Measured = measured
			}
			if flags.Changed("timeout") {
				cfg.Runs.Timeout = config.Duration(timeout)
			}
			if flags.Changed("sample-interval") {
				cfg.Runs.SampleInterval = config.Duration(sampleInterval)
			}
			if flags.Changed("scratch-dir") {
				cfg.ScratchDir = scratchDir
			}
			if flags.Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if len(backendFilter) > 0 {
				cfg.Backends = filterBackends(cfg.Backends, backendFilter)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runBenchmark(cmd.Context(), logger, cfg, outputJSON)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to benchmark config file (default: built-in defaults)")
	flags.StringVar(&dataDir, "data-dir", "",
		"Directory holding the input datasets")
	flags.StringSliceVar(&backendFilter, "backends", nil,
		"Subset of configured backends to run (e.g. geopandas,duckdb)")
	flags.IntVar(&warmup, "warmup", 0,
		"Discarded warm-up runs per backend")
	flags.IntVar(&measured, "measured", 0,
		"Measured runs per backend")
	flags.DurationVar(&timeout, "timeout", 0,
		"Per-invocation timeout")
	flags.DurationVar(&sampleInterval, "sample-interval", 0,
		"Memory sampling interval")
	flags.StringVar(&scratchDir, "scratch-dir", "",
		"Scratch area for per-run temp artifacts")
	flags.StringVar(&outputDir, "output-dir", "",
		"Directory for pipeline outputs and the report file")
	flags.BoolVar(&outputJSON, "json", false,
		"Write the report as JSON to stdout instead of a markdown table")

	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func filterBackends(backends []config.Backend, names []string) []config.Backend {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	kept := make([]config.Backend, 0, len(backends))
	for _, b := range backends {
		if want[b.Name] {
			kept = append(kept, b)
		}
	}
	return kept
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.Config,
	outputJSON bool,
) error {
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("no backends configured; supply --config or --backends")
	}

	host, _ := os.Hostname()
	prov := report.Provenance{
		DataDir: cfg.Data.Dir,
		Host:    host,
		Version: version,
	}

	// Step 1: Discover input data; skip gracefully when absent.
	info, err := dataset.Discover(cfg.Data.Dir, cfg.Data.LayerA, cfg.Data.LayerB)
	if errors.Is(err, dataset.ErrNoData) {
		logger.WarnContext(ctx, "input data missing, skipping benchmark",
			slog.String("data_dir", cfg.Data.Dir),
		)
		prov.Skipped = true
		prov.Reason = err.Error()
		rep := report.Build(backendNames(cfg.Backends), nil, prov)
		return emit(logger, cfg, rep, outputJSON)
	}
	if err != nil {
		return fmt.Errorf("discover dataset: %w", err)
	}

	prov.Dataset = info.Identity()
	prov.SizeClass = info.SizeClass

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("dataset", prov.Dataset),
		slog.String("size_class", info.SizeClass),
		slog.Int("backends", len(cfg.Backends)),
		slog.Int("warmup", cfg.Runs.Warmup),
		slog.Int("measured", cfg.Runs.Measured),
	)

	// Step 2: Build backend specs in registration order.
	specs := make([]backend.Spec, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		adapter, err := process.New(b.Name, process.Config{
			Command: b.Command,
			Env:     b.Env,
			Dir:     b.Dir,
		}, logger)
		if err != nil {
			return err
		}
		spec := backend.Spec{
			Name:    b.Name,
			Adapter: adapter,
			Capabilities: backend.Capabilities{
				Persistent:   b.Persistent,
				LeaksScratch: b.LeaksScratch,
			},
		}
		if b.Warmup != nil {
			spec.Warmup = *b.Warmup
		}
		if b.Measured != nil {
			spec.Measured = *b.Measured
		}
		specs = append(specs, spec)
	}

	// Step 3: Run backends sequentially; concurrent backends would
	// contend for CPU and RAM and invalidate each other's measurements.
	exec, err := harness.New(harness.Config{
		WarmupCount:    cfg.Runs.Warmup,
		MeasuredCount:  cfg.Runs.Measured,
		Timeout:        cfg.Runs.Timeout.Std(),
		SampleInterval: cfg.Runs.SampleInterval.Std(),
		ScratchDir:     cfg.ScratchDir,
		OutputDir:      cfg.OutputDir,
		Inputs:         info.Inputs,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	results := make(map[string]stats.Aggregated, len(specs))
	for _, spec := range specs {
		records, err := exec.Execute(ctx, spec)
		if err != nil {
			return fmt.Errorf("execute %s: %w", spec.Name, err)
		}
		agg := stats.Aggregate(spec.Name, records)
		results[spec.Name] = agg
		logger.InfoContext(ctx, "backend complete",
			slog.String("backend", spec.Name),
			slog.Int("succeeded", agg.Succeeded),
			slog.Int("failed", agg.Failed),
		)
	}

	// Step 4: Build and emit the report.
	rep := report.Build(backendNames(cfg.Backends), results, prov)
	return emit(logger, cfg, rep, outputJSON)
}

// emit persists the report to <output dir>/latest.json and renders it to
// stdout. The report is the product; it is written even for skipped or
// fully failed runs.
func emit(logger *slog.Logger, cfg config.Config, rep *report.Report, outputJSON bool) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	latest := filepath.Join(cfg.OutputDir, "latest.json")
	f, err := os.Create(latest)
	if err != nil {
		return fmt.Errorf("create %s: %w", latest, err)
	}
	defer f.Close()
	if err := rep.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s: %w", latest, err)
	}
	logger.Info("report written", slog.String("path", latest))

	if outputJSON {
		return rep.WriteJSON(os.Stdout)
	}
	return report.Generate(os.Stdout, rep)
}

func backendNames(backends []config.Backend) []string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name)
	}
	return names
}
