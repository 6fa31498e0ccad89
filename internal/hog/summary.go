package hog

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary condenses a descriptor for logs, job status and listings.
type Summary struct {
	// DominantBins holds, per cell, the index of the strongest bin or -1 for
	// a cell with no gradient energy.
	DominantBins []int `json:"dominantBins"`
	// ActiveCells counts cells with a nonzero histogram.
	ActiveCells int `json:"activeCells"`
	// MeanEnergy is the mean of the per-cell sums of squares (1 for an active
	// cell after L2-Hys, 0 for an empty one).
	MeanEnergy float64 `json:"meanEnergy"`
	// MeanOrientation is the circular mean of the orientation histogram
	// pooled over all cells, in degrees within [0, 360). It is 0 when no
	// cell is active.
	MeanOrientation float64 `json:"meanOrientation"`
}

// Summarize computes a Summary of d.
func Summarize(d *Descriptor) Summary {
	bins := d.Grid.Bins
	cells := d.Grid.Cells()

	s := Summary{DominantBins: make([]int, cells)}
	energy := make([]float64, cells)
	pooled := make([]float64, bins)

	for c := 0; c < cells; c++ {
		cell := d.Hist[c*bins : (c+1)*bins]
		energy[c] = floats.Dot(cell, cell)
		if energy[c] == 0 {
			s.DominantBins[c] = -1
			continue
		}
		s.ActiveCells++
		s.DominantBins[c] = floats.MaxIdx(cell)
		floats.Add(pooled, cell)
	}

	if cells > 0 {
		s.MeanEnergy = stat.Mean(energy, nil)
	}

	if s.ActiveCells > 0 {
		// Bin b collects angles in [b, b+1) of bin space, centered on b+0.5.
		centers := make([]float64, bins)
		for b := range centers {
			centers[b] = 2 * math.Pi * (float64(b) + 0.5) / float64(bins)
		}
		mean := stat.CircularMean(centers, pooled)
		if mean < 0 {
			mean += 2 * math.Pi
		}
		s.MeanOrientation = mean * 180 / math.Pi
	}

	return s
}

// Distance returns the Euclidean distance between two descriptors with the
// same grid.
func Distance(a, b *Descriptor) (float64, error) {
	if a.Grid != b.Grid {
		return 0, fmt.Errorf("%w: grid %+v vs %+v", ErrInvalidParams, a.Grid, b.Grid)
	}
	return floats.Distance(a.Hist, b.Hist, 2), nil
}
