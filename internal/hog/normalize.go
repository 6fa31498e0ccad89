package hog

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// epsilon keeps the norm away from zero in both L2-Hys passes.
	epsilon = 1e-14
	// clipCeiling caps every bin after the first normalization pass.
	clipCeiling = 0.2
)

// Normalize applies L2-Hys to every cell of hist independently.
func Normalize(hist []float64, grid Grid) {
	normalizeCells(hist, grid.Bins, 0, grid.Cells())
}

func normalizeCells(hist []float64, bins, start, end int) {
	for c := start; c < end; c++ {
		NormalizeCell(hist[c*bins : (c+1)*bins])
	}
}

// NormalizeCell scales cell to unit L2 norm, clips each bin at 0.2 and
// rescales to unit norm again. An all-zero cell is left untouched.
func NormalizeCell(cell []float64) {
	sumSq := floats.Dot(cell, cell)
	if sumSq == 0 {
		return
	}

	floats.Scale(1/math.Sqrt(sumSq+epsilon), cell)
	for i, v := range cell {
		cell[i] = min(v, clipCeiling)
	}
	floats.Scale(1/math.Sqrt(floats.Dot(cell, cell)+epsilon), cell)
}
