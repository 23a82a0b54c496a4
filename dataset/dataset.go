// Package dataset locates and fingerprints the benchmark input data. The
// harness never opens or validates the geometries; it only needs to know
// whether the expected layers exist, how large the data is, and which size
// class a report should be attributed to.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/geospeed/geospeed/backend"
)

// ErrNoData signals that the data directory holds none of the expected
// input layers; benchmarks skip gracefully instead of failing.
var ErrNoData = errors.New("no input data found")

// Size classes attached to report provenance. The threshold separates the
// full dataset from reduced CI subsets so their reports are never conflated.
const (
	SizeClassFull    = "full"
	SizeClassReduced = "reduced"

	fullSizeThreshold = int64(1) << 30 // 1 GiB
)

// Info describes a discovered dataset.
type Info struct {
	Dir        string
	Inputs     []backend.DatasetRef
	LayerFiles int
	TotalBytes int64
	SizeClass  string
}

// Identity is a short human-readable dataset descriptor for provenance.
func (i *Info) Identity() string {
	return fmt.Sprintf("%s (%d layer files, %d bytes)",
		filepath.Base(i.Dir), i.LayerFiles, i.TotalBytes)
}

// Discover checks dir for the two expected layers (one file per district
// subdirectory, as the source distributes them) and sizes the whole tree.
// Returns ErrNoData when the first layer is absent entirely.
func Discover(dir, layerA, layerB string) (*Info, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	matchesA, err := filepath.Glob(filepath.Join(abs, "*", layerA))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", layerA, err)
	}
	if len(matchesA) == 0 {
		return nil, fmt.Errorf("%w under %s (looked for */%s)", ErrNoData, abs, layerA)
	}
	matchesB, err := filepath.Glob(filepath.Join(abs, "*", layerB))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", layerB, err)
	}

	total, err := treeSize(abs)
	if err != nil {
		return nil, fmt.Errorf("size data dir: %w", err)
	}

	info := &Info{
		Dir: abs,
		Inputs: []backend.DatasetRef{
			{Dir: abs, Layer: layerA},
			{Dir: abs, Layer: layerB},
		},
		LayerFiles: len(matchesA) + len(matchesB),
		TotalBytes: total,
		SizeClass:  SizeClassReduced,
	}
	if total >= fullSizeThreshold {
		info.SizeClass = SizeClassFull
	}
	return info, nil
}

func treeSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
