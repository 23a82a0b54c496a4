package report

import (
	"fmt"
	"io"
	"strings"
)

// Generate writes the markdown comparison table for a report. This is a
// convenience renderer for the CLI; CI consumers take the JSON form.
func Generate(w io.Writer, r *Report) error {
	if len(r.Entries) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Dataset: **%s** (%s), host %s, generated %s\n",
		r.Provenance.Dataset,
		r.Provenance.SizeClass,
		r.Provenance.Host,
		r.GeneratedAt.Format("2006-01-02 15:04:05 MST"),
	)
	fmt.Fprintln(w)

	if r.Provenance.Skipped {
		fmt.Fprintf(w, "Skipped: %s\n", r.Provenance.Reason)
		return nil
	}

	if fastest := r.Fastest(); fastest != "" {
		fmt.Fprintf(w, "Fastest: **%s**", fastest)
		if lean := r.MostMemoryEfficient(); lean != "" {
			fmt.Fprintf(w, ", most memory-efficient: **%s**", lean)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)
	}

	fastestMean := 0.0
	if name := r.Fastest(); name != "" {
		if e := r.entry(name); e != nil && e.DurationMeanS != nil {
			fastestMean = *e.DurationMeanS
		}
	}

	fmt.Fprintln(w, "| Backend | Runs | Duration | Peak Mem | Slowdown "+
		"| Rank (time) | Rank (mem) |")
	fmt.Fprintln(w, "|---------|------|----------|----------|----------"+
		"|-------------|------------|")

	for _, e := range r.Entries {
		fmt.Fprintf(w, "| %s | %d/%d | %s | %s | %s | %s | %s |\n",
			e.Backend,
			e.Succeeded, e.Attempted,
			formatDuration(e.DurationMeanS, e.DurationStdS),
			formatMB(e.MemoryPeakMB),
			formatSlowdown(e.DurationMeanS, fastestMean),
			formatRank(e.RankDuration),
			formatRank(e.RankMemory),
		)
	}

	failed := false
	for _, e := range r.Entries {
		if len(e.Failures) > 0 || len(e.Caveats) > 0 {
			failed = true
			break
		}
	}
	if !failed {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "### Failures and caveats")
	fmt.Fprintln(w)
	for _, e := range r.Entries {
		for _, f := range e.Failures {
			fmt.Fprintf(w, "- %s: [%s] %s\n", e.Backend, f.Kind, f.Message)
		}
		for _, c := range e.Caveats {
			fmt.Fprintf(w, "- %s: caveat: %s\n", e.Backend, c)
		}
	}
	return nil
}

// formatDuration renders "12.34s ± 0.56s" or "N/A" when no run succeeded.
func formatDuration(mean, std *float64) string {
	if mean == nil {
		return "N/A"
	}
	out := formatSeconds(*mean)
	if std != nil {
		out += " ± " + formatSeconds(*std)
	}
	return out
}

func formatSeconds(s float64) string {
	if s < 1 {
		return fmt.Sprintf("%.0fms", s*1000)
	}
	return fmt.Sprintf("%.2fs", s)
}

func formatMB(mb *float64) string {
	if mb == nil {
		return "N/A"
	}
	if *mb >= 1024 {
		return trimZeros(fmt.Sprintf("%.1f", *mb/1024)) + " GB"
	}
	return trimZeros(fmt.Sprintf("%.1f", *mb)) + " MB"
}

func formatSlowdown(mean *float64, fastest float64) string {
	if mean == nil || fastest <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", *mean/fastest)
}

func formatRank(rank int) string {
	if rank == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", rank)
}

func trimZeros(s string) string {
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
