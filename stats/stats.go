// Package stats reduces per-run measurement records into per-backend
// summary statistics.
package stats

import (
	"math"

	"github.com/geospeed/geospeed/harness"
)

// Summary describes one metric over the successful runs. When Available is
// false no successful measurement existed and the numeric fields are
// meaningless; they must be rendered as unavailable, never as zero.
type Summary struct {
	Mean float64 `json:"mean"`
	// Std is the sample standard deviation (Bessel's correction). A
	// single measurement reports 0 by convention.
	Std float64 `json:"std"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	Available bool `json:"available"`
}

// StageSummary summarizes per-stage wall time for engines that expose
// stage timings; stages an engine never reported are unavailable.
type StageSummary struct {
	Load      Summary `json:"load"`
	Transform Summary `json:"transform"`
	Persist   Summary `json:"persist"`
}

// Aggregated is the per-backend reduction over its measured records.
type Aggregated struct {
	Backend   string `json:"backend"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`

	// DurationSeconds summarizes wall time over successful runs.
	DurationSeconds Summary `json:"duration_seconds"`
	// PeakRSSMB summarizes peak resident memory in MB over successful
	// runs whose sampler was operational.
	PeakRSSMB Summary `json:"peak_rss_mb"`
	// AvailDropMB summarizes the drop in system available memory in MB,
	// the secondary figure for engines whose allocations bypass RSS
	// accounting (e.g. spilled worker processes).
	AvailDropMB Summary `json:"avail_drop_mb"`

	// StageSeconds breaks successful runs down by pipeline stage where
	// the engine reported stage timings.
	StageSeconds StageSummary `json:"stage_seconds"`

	// Failures holds every failure detail verbatim for diagnostics.
	Failures []harness.FailureDetail `json:"failures,omitempty"`
	// Caveats merges non-fatal per-run caveats such as cleanup failures.
	Caveats []string `json:"caveats,omitempty"`
}

// Aggregate reduces the measured records of one backend. Numeric statistics
// are computed over success records only; best-effort partials on failure
// records are never mixed in.
func Aggregate(name string, records []harness.Record) Aggregated {
	agg := Aggregated{Backend: name, Attempted: len(records)}

	var durations, peaks, drops []float64
	var loads, transforms, persists []float64
	for _, rec := range records {
		agg.Caveats = append(agg.Caveats, rec.Caveats...)

		if rec.Outcome != harness.OutcomeSuccess {
			agg.Failed++
			if rec.Failure != nil {
				agg.Failures = append(agg.Failures, *rec.Failure)
			}
			continue
		}

		agg.Succeeded++
		durations = append(durations, rec.Duration.Seconds())
		if rec.MemoryOK {
			peaks = append(peaks, float64(rec.PeakRSSBytes)/(1024*1024))
			drops = append(drops, float64(rec.AvailDropBytes)/(1024*1024))
		}
		if rec.Stages.Load > 0 {
			loads = append(loads, rec.Stages.Load.Seconds())
		}
		if rec.Stages.Transform > 0 {
			transforms = append(transforms, rec.Stages.Transform.Seconds())
		}
		if rec.Stages.Persist > 0 {
			persists = append(persists, rec.Stages.Persist.Seconds())
		}
	}

	agg.DurationSeconds = summarize(durations)
	agg.PeakRSSMB = summarize(peaks)
	agg.AvailDropMB = summarize(drops)
	agg.StageSeconds = StageSummary{
		Load:      summarize(loads),
		Transform: summarize(transforms),
		Persist:   summarize(persists),
	}
	return agg
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{Available: true, Min: values[0], Max: values[0]}

	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))

	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(values)-1))
	}
	return s
}
