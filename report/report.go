// Package report assembles aggregated per-backend results into the
// harness's terminal artifact: an ordered comparison with duration and
// memory rankings, serialized for downstream renderers.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/geospeed/geospeed/harness"
	"github.com/geospeed/geospeed/stats"
)

// Provenance describes the dataset and environment a report was generated
// under, so reports from different dataset scales are never conflated.
type Provenance struct {
	Dataset   string `json:"dataset"`
	SizeClass string `json:"size_class"`
	DataDir   string `json:"data_dir"`
	Host      string `json:"host"`
	Version   string `json:"harness_version,omitempty"`

	// Skipped marks a report produced without running anything because
	// the input data was missing.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Entry is one backend's row in the report. Rank fields are 1-based; 0
// means the backend had no successful runs and is excluded from that
// ordering (but never dropped from the report).
type Entry struct {
	Backend   string `json:"backend"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`

	DurationMeanS *float64 `json:"duration_mean_s"`
	DurationStdS  *float64 `json:"duration_std_s"`
	MemoryMeanMB  *float64 `json:"memory_mean_mb"`
	MemoryPeakMB  *float64 `json:"memory_peak_mb"`

	// MemoryAvailDropMB is the mean drop in system available memory, the
	// secondary best-effort memory figure.
	MemoryAvailDropMB *float64 `json:"memory_avail_drop_mb"`

	// Per-stage mean wall time, for engines exposing stage timings.
	LoadMeanS      *float64 `json:"load_mean_s"`
	TransformMeanS *float64 `json:"transform_mean_s"`
	PersistMeanS   *float64 `json:"persist_mean_s"`

	RankDuration int `json:"rank_duration"`
	RankMemory   int `json:"rank_memory"`

	Failures []harness.FailureDetail `json:"failures,omitempty"`
	Caveats  []string                `json:"caveats,omitempty"`
}

// Report is immutable once built.
type Report struct {
	ID          string     `json:"id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Provenance  Provenance `json:"provenance"`

	// Entries keeps backend registration order.
	Entries []Entry `json:"results"`

	// Rankings list backend names ascending by mean duration and mean
	// peak memory; only backends with at least one successful run
	// appear. Ties keep registration order.
	DurationRanking []string `json:"ranking_by_duration"`
	MemoryRanking   []string `json:"ranking_by_memory"`
}

// Build assembles the report. order is the backend registration order and
// is the iteration and tie-break order throughout; results maps backend
// name to its aggregate. Backends missing from results appear with zero
// attempts.
func Build(order []string, results map[string]stats.Aggregated, prov Provenance) *Report {
	r := &Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Provenance:  prov,
		Entries:     make([]Entry, 0, len(order)),
	}

	for _, name := range order {
		agg := results[name]
		entry := Entry{
			Backend:   name,
			Attempted: agg.Attempted,
			Succeeded: agg.Succeeded,
			Failed:    agg.Failed,
			Failures:  agg.Failures,
			Caveats:   agg.Caveats,
		}
		if agg.DurationSeconds.Available {
			entry.DurationMeanS = ptr(agg.DurationSeconds.Mean)
			entry.DurationStdS = ptr(agg.DurationSeconds.Std)
		}
		if agg.PeakRSSMB.Available {
			entry.MemoryMeanMB = ptr(agg.PeakRSSMB.Mean)
			entry.MemoryPeakMB = ptr(agg.PeakRSSMB.Max)
		}
		if agg.AvailDropMB.Available {
			entry.MemoryAvailDropMB = ptr(agg.AvailDropMB.Mean)
		}
		if agg.StageSeconds.Load.Available {
			entry.LoadMeanS = ptr(agg.StageSeconds.Load.Mean)
		}
		if agg.StageSeconds.Transform.Available {
			entry.TransformMeanS = ptr(agg.StageSeconds.Transform.Mean)
		}
		if agg.StageSeconds.Persist.Available {
			entry.PersistMeanS = ptr(agg.StageSeconds.Persist.Mean)
		}
		r.Entries = append(r.Entries, entry)
	}

	durIdx := rank(r.Entries, func(e *Entry) *float64 { return e.DurationMeanS })
	r.DurationRanking = names(r.Entries, durIdx)
	for pos, i := range durIdx {
		r.Entries[i].RankDuration = pos + 1
	}

	memIdx := rank(r.Entries, func(e *Entry) *float64 { return e.MemoryMeanMB })
	r.MemoryRanking = names(r.Entries, memIdx)
	for pos, i := range memIdx {
		r.Entries[i].RankMemory = pos + 1
	}

	return r
}

// Fastest returns the name of the top-ranked backend by duration, or ""
// when no backend succeeded.
func (r *Report) Fastest() string {
	if len(r.DurationRanking) == 0 {
		return ""
	}
	return r.DurationRanking[0]
}

// MostMemoryEfficient returns the top-ranked backend by peak memory, or "".
func (r *Report) MostMemoryEfficient() string {
	if len(r.MemoryRanking) == 0 {
		return ""
	}
	return r.MemoryRanking[0]
}

// WriteJSON serializes the report for external renderers and CI.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// entry returns the named backend's row, or nil when no such backend is
// in the report.
func (r *Report) entry(name string) *Entry {
	for i := range r.Entries {
		if r.Entries[i].Backend == name {
			return &r.Entries[i]
		}
	}
	return nil
}

// rank produces an ascending ordering, as entry indices, over entries
// whose metric is available. The stable sort preserves registration order
// for equal means.
func rank(entries []Entry, metric func(*Entry) *float64) []int {
	idx := make([]int, 0, len(entries))
	for i := range entries {
		if entries[i].Succeeded > 0 && metric(&entries[i]) != nil {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return *metric(&entries[idx[a]]) < *metric(&entries[idx[b]])
	})
	return idx
}

func names(entries []Entry, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, entries[i].Backend)
	}
	return out
}

func ptr(v float64) *float64 { return &v }
