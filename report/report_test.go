package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geospeed/geospeed/harness"
	"github.com/geospeed/geospeed/stats"
)

func aggregated(name string, succeeded, failed int, meanS, memMB float64) stats.Aggregated {
	agg := stats.Aggregated{
		Backend:   name,
		Attempted: succeeded + failed,
		Succeeded: succeeded,
		Failed:    failed,
	}
	if succeeded > 0 {
		agg.DurationSeconds = stats.Summary{
			Mean: meanS, Min: meanS, Max: meanS, Available: true,
		}
		agg.PeakRSSMB = stats.Summary{
			Mean: memMB, Min: memMB, Max: memMB, Available: true,
		}
	}
	return agg
}

func testResults() ([]string, map[string]stats.Aggregated) {
	order := []string{"A", "B", "C"}
	results := map[string]stats.Aggregated{
		"A": aggregated("A", 5, 0, 2.0, 100),
		"B": aggregated("B", 4, 1, 1.5, 80),
		"C": aggregated("C", 0, 5, 0, 0),
	}
	return order, results
}

func TestBuildRankings(t *testing.T) {
	order, results := testResults()
	rep := Build(order, results, Provenance{Dataset: "alkis", SizeClass: "full"})

	assert.Equal(t, []string{"B", "A"}, rep.DurationRanking)
	assert.Equal(t, []string{"B", "A"}, rep.MemoryRanking)
	assert.Equal(t, "B", rep.Fastest())
	assert.Equal(t, "B", rep.MostMemoryEfficient())

	// Registration order is preserved in the entries, rankings are
	// carried per entry, and the all-failed backend stays listed.
	require.Len(t, rep.Entries, 3)
	assert.Equal(t, "A", rep.Entries[0].Backend)
	assert.Equal(t, 2, rep.Entries[0].RankDuration)
	assert.Equal(t, "B", rep.Entries[1].Backend)
	assert.Equal(t, 1, rep.Entries[1].RankDuration)
	assert.Equal(t, "C", rep.Entries[2].Backend)
	assert.Equal(t, 0, rep.Entries[2].RankDuration)
	assert.Nil(t, rep.Entries[2].DurationMeanS)
	assert.NotEmpty(t, rep.ID)
}

func TestBuildCarriesSecondaryMetrics(t *testing.T) {
	agg := aggregated("A", 3, 0, 2.0, 100)
	agg.AvailDropMB = stats.Summary{Mean: 768, Min: 512, Max: 1024, Available: true}
	agg.StageSeconds = stats.StageSummary{
		Load:      stats.Summary{Mean: 0.5, Available: true},
		Transform: stats.Summary{Mean: 1.0, Available: true},
		Persist:   stats.Summary{Mean: 0.5, Available: true},
	}

	rep := Build([]string{"A", "B"}, map[string]stats.Aggregated{
		"A": agg,
		"B": aggregated("B", 3, 0, 1.5, 80),
	}, Provenance{})

	a := rep.Entries[0]
	require.NotNil(t, a.MemoryAvailDropMB)
	assert.InDelta(t, 768.0, *a.MemoryAvailDropMB, 1e-9)
	require.NotNil(t, a.TransformMeanS)
	assert.InDelta(t, 1.0, *a.TransformMeanS, 1e-9)
	require.NotNil(t, a.LoadMeanS)
	require.NotNil(t, a.PersistMeanS)

	// B reported no stage timings or avail-drop; its fields stay null.
	b := rep.Entries[1]
	assert.Nil(t, b.MemoryAvailDropMB)
	assert.Nil(t, b.LoadMeanS)
	assert.Nil(t, b.TransformMeanS)
	assert.Nil(t, b.PersistMeanS)
}

func TestRanksMatchRankingLists(t *testing.T) {
	order, results := testResults()
	rep := Build(order, results, Provenance{})

	// Each name in a ranking list must resolve to an entry carrying the
	// matching 1-based rank.
	for pos, name := range rep.DurationRanking {
		e := rep.entry(name)
		require.NotNil(t, e)
		assert.Equal(t, pos+1, e.RankDuration)
	}
	for pos, name := range rep.MemoryRanking {
		e := rep.entry(name)
		require.NotNil(t, e)
		assert.Equal(t, pos+1, e.RankMemory)
	}

	assert.Nil(t, rep.entry("ghost"))
}

func TestTiesBreakByRegistrationOrder(t *testing.T) {
	order := []string{"first", "second"}
	results := map[string]stats.Aggregated{
		"first":  aggregated("first", 3, 0, 1.0, 64),
		"second": aggregated("second", 3, 0, 1.0, 64),
	}

	// Repeated builds from identical input must be stable.
	for i := 0; i < 10; i++ {
		rep := Build(order, results, Provenance{})
		assert.Equal(t, []string{"first", "second"}, rep.DurationRanking)
		assert.Equal(t, []string{"first", "second"}, rep.MemoryRanking)
	}
}

func TestMissingBackendListedWithZeroAttempts(t *testing.T) {
	rep := Build([]string{"ghost"}, nil, Provenance{Skipped: true, Reason: "no data"})

	require.Len(t, rep.Entries, 1)
	assert.Equal(t, "ghost", rep.Entries[0].Backend)
	assert.Zero(t, rep.Entries[0].Attempted)
	assert.Empty(t, rep.DurationRanking)
}

func TestJSONShape(t *testing.T) {
	order, results := testResults()
	rep := Build(order, results, Provenance{Dataset: "alkis", SizeClass: "reduced", Host: "ci"})

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var decoded struct {
		ID          string `json:"id"`
		GeneratedAt string `json:"generated_at"`
		Provenance  struct {
			SizeClass string `json:"size_class"`
		} `json:"provenance"`
		Results []map[string]json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.NotEmpty(t, decoded.ID)
	assert.NotEmpty(t, decoded.GeneratedAt)
	assert.Equal(t, "reduced", decoded.Provenance.SizeClass)
	require.Len(t, decoded.Results, 3)

	for _, key := range []string{
		"backend", "attempted", "succeeded", "failed",
		"duration_mean_s", "duration_std_s", "memory_peak_mb",
		"memory_avail_drop_mb", "load_mean_s", "transform_mean_s",
		"persist_mean_s", "rank_duration", "rank_memory",
	} {
		_, ok := decoded.Results[0][key]
		assert.True(t, ok, "missing key %q", key)
	}

	// The all-failed backend serializes null statistics, not zeros.
	assert.Equal(t, "null", string(decoded.Results[2]["duration_mean_s"]))
}

func TestMarkdownTable(t *testing.T) {
	order, results := testResults()
	results["C"] = withFailure(results["C"])
	rep := Build(order, results, Provenance{Dataset: "alkis", SizeClass: "full", Host: "bench-01"})

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, rep))
	out := buf.String()

	assert.Contains(t, out, "## Benchmark Results")
	assert.Contains(t, out, "Fastest: **B**")
	for _, name := range order {
		assert.Contains(t, out, "| "+name+" |")
	}
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "[timeout]")

	assert.Equal(t, 1, strings.Count(out, "2.00s ± 0ms"))
}

func TestMarkdownSkipped(t *testing.T) {
	rep := Build([]string{"A"}, nil, Provenance{Skipped: true, Reason: "no input data"})

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, rep))
	assert.Contains(t, buf.String(), "Skipped: no input data")
}

func TestMarkdownEmptyReport(t *testing.T) {
	rep := Build(nil, nil, Provenance{})
	var buf bytes.Buffer
	assert.Error(t, Generate(&buf, rep))
}

func withFailure(agg stats.Aggregated) stats.Aggregated {
	agg.Failures = append(agg.Failures, harness.FailureDetail{
		Kind:    harness.FailTimeout,
		Message: "run exceeded 1s bound",
	})
	return agg
}
