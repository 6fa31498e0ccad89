package hog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brightPixelDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	img := constantImage(4, 4, 0)
	img.Pix[1*4+1] = 1
	d, err := Describe(img, Params{CellWidth: 2, CellHeight: 2, Bins: 9})
	require.NoError(t, err)
	return d
}

func TestSummarize(t *testing.T) {
	d := brightPixelDescriptor(t)

	s := Summarize(d)

	assert.Equal(t, 3, s.ActiveCells)
	require.Len(t, s.DominantBins, 4)
	assert.Equal(t, 4, s.DominantBins[1])
	assert.Equal(t, -1, s.DominantBins[3])
	assert.InDelta(t, 0.75, s.MeanEnergy, 1e-9)
	assert.GreaterOrEqual(t, s.MeanOrientation, 0.0)
	assert.Less(t, s.MeanOrientation, 360.0)
}

func TestSummarizeEmptyDescriptor(t *testing.T) {
	d, err := Describe(constantImage(4, 4, 1), Params{CellWidth: 2, CellHeight: 2, Bins: 9})
	require.NoError(t, err)

	s := Summarize(d)

	assert.Zero(t, s.ActiveCells)
	assert.Zero(t, s.MeanEnergy)
	assert.Zero(t, s.MeanOrientation)
	assert.Equal(t, []int{-1, -1, -1, -1}, s.DominantBins)
}

func TestSummarizeMeanOrientationOfHorizontalRamp(t *testing.T) {
	// Intensity grows to the right: gradients at angle 0 split evenly
	// between bins 7 and 0 of 8, centered at 337.5 and 22.5 degrees.
	rows, cols := 8, 8
	img := &Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.Pix[y*cols+x] = float64(x)
		}
	}
	d, err := Describe(img, Params{CellWidth: 4, CellHeight: 4, Bins: 8})
	require.NoError(t, err)

	s := Summarize(d)

	assert.Equal(t, 4, s.ActiveCells)
	fromZero := math.Min(s.MeanOrientation, 360-s.MeanOrientation)
	assert.InDelta(t, 0, fromZero, 1e-6)
}

func TestDistance(t *testing.T) {
	a := brightPixelDescriptor(t)
	b := brightPixelDescriptor(t)

	dist, err := Distance(a, b)
	require.NoError(t, err)
	assert.Zero(t, dist)

	empty, err := Describe(constantImage(4, 4, 0), Params{CellWidth: 2, CellHeight: 2, Bins: 9})
	require.NoError(t, err)
	dist, err = Distance(a, empty)
	require.NoError(t, err)
	// Three unit-norm cells against zeros.
	assert.InDelta(t, 1.7320508075688772, dist, 1e-9)

	other, err := Describe(constantImage(4, 4, 0), Params{CellWidth: 2, CellHeight: 2, Bins: 8})
	require.NoError(t, err)
	_, err = Distance(a, other)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestVisualize(t *testing.T) {
	d := brightPixelDescriptor(t)

	img := Visualize(d, 9)

	assert.Equal(t, 18, img.Bounds().Dx())
	assert.Equal(t, 18, img.Bounds().Dy())

	lit := func(x0, y0 int) int {
		n := 0
		for y := y0; y < y0+9; y++ {
			for x := x0; x < x0+9; x++ {
				if img.GrayAt(x, y).Y > 0 {
					n++
				}
			}
		}
		return n
	}
	assert.Positive(t, lit(0, 0))
	assert.Positive(t, lit(9, 0))
	assert.Positive(t, lit(0, 9))
	assert.Zero(t, lit(9, 9))
}

func TestVisualizeMinimumCellSize(t *testing.T) {
	d := brightPixelDescriptor(t)
	img := Visualize(d, 1)
	assert.Equal(t, 6, img.Bounds().Dx())
}
