package harness_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geospeed/geospeed/backend"
	"github.com/geospeed/geospeed/backend/fake"
	"github.com/geospeed/geospeed/harness"
	"github.com/geospeed/geospeed/report"
	"github.com/geospeed/geospeed/stats"
)

// Three backends through the whole measurement path: A always succeeds but
// is slower, B fails once on its third measured run, C always hangs past
// the timeout. The report must rank [B, A] and list C with zero successes.
func TestComparisonScenario(t *testing.T) {
	boom := &backend.StageError{Stage: backend.StageTransform, Err: os.ErrInvalid}

	backends := []struct {
		name    string
		adapter backend.Adapter
	}{
		{"A", fake.New(fake.Step{Delay: 40 * time.Millisecond})},
		{"B", fake.New(
			fake.Step{Delay: 20 * time.Millisecond}, // warm-up
			fake.Step{Delay: 20 * time.Millisecond},
			fake.Step{Delay: 20 * time.Millisecond},
			fake.Step{Delay: 20 * time.Millisecond, Err: boom},
			fake.Step{Delay: 20 * time.Millisecond},
			fake.Step{Delay: 20 * time.Millisecond},
		)},
		{"C", fake.New(fake.Step{Hang: true})},
	}

	exec, err := harness.New(harness.Config{
		WarmupCount:    1,
		MeasuredCount:  5,
		Timeout:        100 * time.Millisecond,
		SampleInterval: time.Millisecond,
		ScratchDir:     t.TempDir(),
	})
	require.NoError(t, err)

	order := make([]string, 0, len(backends))
	results := map[string]stats.Aggregated{}
	for _, b := range backends {
		order = append(order, b.name)
		records, err := exec.Execute(context.Background(), backend.Spec{
			Name:    b.name,
			Adapter: b.adapter,
		})
		require.NoError(t, err)
		require.Len(t, records, 5)
		results[b.name] = stats.Aggregate(b.name, records)
	}

	assert.Equal(t, 5, results["A"].Succeeded)
	assert.Equal(t, 0, results["A"].Failed)

	assert.Equal(t, 4, results["B"].Succeeded)
	assert.Equal(t, 1, results["B"].Failed)
	require.Len(t, results["B"].Failures, 1)
	assert.Equal(t, harness.FailTransform, results["B"].Failures[0].Kind)

	assert.Equal(t, 0, results["C"].Succeeded)
	assert.Equal(t, 5, results["C"].Failed)
	for _, f := range results["C"].Failures {
		assert.Equal(t, harness.FailTimeout, f.Kind)
	}
	assert.False(t, results["C"].DurationSeconds.Available)

	rep := report.Build(order, results, report.Provenance{Dataset: "synthetic", SizeClass: "reduced"})

	assert.Equal(t, []string{"B", "A"}, rep.DurationRanking)
	assert.NotContains(t, rep.MemoryRanking, "C")
	assert.Equal(t, "B", rep.Fastest())

	// C stays in the report, explicitly unranked, rather than vanishing.
	require.Len(t, rep.Entries, 3)
	assert.Equal(t, "C", rep.Entries[2].Backend)
	assert.Equal(t, 0, rep.Entries[2].RankDuration)
	assert.Nil(t, rep.Entries[2].DurationMeanS)
}
