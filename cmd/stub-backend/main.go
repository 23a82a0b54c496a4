// Stub backend speaks the geospeed subprocess protocol without any real
// engine behind it: it reads the injected environment, simulates the three
// pipeline stages, writes a small output file, and reports its outcome as a
// JSON line on stdout. Useful for exercising the harness end to end and as
// a template for wiring real engines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type outcome struct {
	LoadSeconds      float64  `json:"load_s"`
	TransformSeconds float64  `json:"transform_s"`
	PersistSeconds   float64  `json:"persist_s"`
	Features         int64    `json:"features"`
	OutputBytes      int64    `json:"output_bytes"`
	Scratch          []string `json:"scratch,omitempty"`
	Stage            string   `json:"stage,omitempty"`
	Error            string   `json:"error,omitempty"`
}

func main() {
	sleep := flag.Duration("sleep", 50*time.Millisecond, "simulated work per stage")
	failStage := flag.String("fail-stage", "", "fail at this stage (load, transform, persist)")
	features := flag.Int64("features", 1000, "reported feature count")
	leak := flag.Bool("leak-scratch", false, "create a stray scratch file and report it")
	flag.Parse()

	outputPath := os.Getenv("GEOSPEED_OUTPUT")
	scratchDir := os.Getenv("GEOSPEED_SCRATCH_DIR")
	if outputPath == "" {
		fatal("GEOSPEED_OUTPUT not set")
	}

	out := outcome{Features: -1, OutputBytes: -1}

	stages := []string{"load", "transform", "persist"}
	for _, stage := range stages {
		start := time.Now()
		time.Sleep(*sleep)
		elapsed := time.Since(start).Seconds()

		if *failStage == stage {
			out.Stage = stage
			out.Error = fmt.Sprintf("simulated %s failure", stage)
			emit(out)
			os.Exit(1)
		}

		switch stage {
		case "load":
			out.LoadSeconds = elapsed
		case "transform":
			out.TransformSeconds = elapsed
		case "persist":
			out.PersistSeconds = elapsed
		}
	}

	if *leak && scratchDir != "" {
		stray := filepath.Join(scratchDir, fmt.Sprintf("stray-%d.tmp", os.Getpid()))
		if err := os.WriteFile(stray, []byte("leak"), 0o644); err == nil {
			out.Scratch = append(out.Scratch, stray)
		}
	}

	payload := []byte("stub overlay result\n")
	if err := os.WriteFile(outputPath, payload, 0o644); err != nil {
		out.Stage = "persist"
		out.Error = err.Error()
		emit(out)
		os.Exit(1)
	}

	out.Features = *features
	out.OutputBytes = int64(len(payload))
	emit(out)
}

func emit(out outcome) {
	_ = json.NewEncoder(os.Stdout).Encode(out)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
