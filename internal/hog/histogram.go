package hog

import "math"

// SplitVote divides a pixel's magnitude between the two orientation bins
// nearest to its bin-space angle.
//
// The upper bin is floor(angle+0.5) and the lower bin the one below it. The
// lower vote is mag*(high+0.5-angle) and the upper vote takes the rest, so
// lowVote+highVote == mag. Bin 0 and bin bins-1 are neighbors: an upper bin
// below 1 sends its lower vote to bins-1, and an upper bin at or past bins
// wraps to 0.
func SplitVote(mag, angle float64, bins int) (low, high int, lowVote, highVote float64) {
	high = int(math.Floor(angle + 0.5))
	low = high - 1

	lowVote = mag * (float64(high) + 0.5 - angle)
	highVote = mag - lowVote

	if high < 1 {
		low = bins - 1
	}
	if high >= bins {
		high = 0
	}
	return low, high, lowVote, highVote
}

// BuildHistogram zeroes hist, accumulates the votes of every pixel covered by
// the cell grid and normalizes each cell with L2-Hys. mag and ori hold
// rows*cols values, ori in bin space. hist must hold GridFor(rows, cols).Len()
// values.
func BuildHistogram(mag, ori []float64, rows, cols int, p Params, hist []float64) {
	grid := p.GridFor(rows, cols)
	accumulateCellRows(mag, ori, cols, p, grid, hist, 0, grid.CellsY)
	normalizeCells(hist, grid.Bins, 0, grid.Cells())
}

// accumulateCellRows zeroes and fills the histograms of cell rows
// [start, end). A cell row owns a contiguous block of hist, so disjoint
// ranges never touch the same bins.
func accumulateCellRows(mag, ori []float64, cols int, p Params, grid Grid, hist []float64, start, end int) {
	rowStride := grid.CellsX * grid.Bins
	clear(hist[start*rowStride : end*rowStride])

	coveredCols := grid.CellsX * p.CellWidth

	for y := start * p.CellHeight; y < end*p.CellHeight; y++ {
		rowOff := (y / p.CellHeight) * rowStride
		pixOff := y * cols

		for x := 0; x < coveredCols; x++ {
			cell := hist[rowOff+(x/p.CellWidth)*grid.Bins : rowOff+(x/p.CellWidth+1)*grid.Bins]

			low, high, lowVote, highVote := SplitVote(mag[pixOff+x], ori[pixOff+x], grid.Bins)
			cell[low] += lowVote
			cell[high] += highVote
		}
	}
}
