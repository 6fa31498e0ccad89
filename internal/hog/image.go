// Package hog computes dense Histogram-of-Oriented-Gradients descriptors.
//
// The pipeline runs four stages once per image:
//
//  1. Gradient: central differences along x and y, one-sided at borders.
//  2. MagnitudeOrientation: per-pixel magnitude and bin-space angle,
//     processed in fixed-width batches with a scalar tail.
//  3. BuildHistogram: per-cell orientation histograms with the vote of each
//     pixel split between its two nearest (circular) bins.
//  4. Normalize: per-cell L2-Hys (normalize, clip at 0.2, renormalize).
//
// Rows are traversed by y and columns by x in every stage. Orientation
// values handed between stages are bin-space coordinates in [0, bins),
// not radians.
package hog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned when an image is smaller than 2x2 or its
	// pixel buffer does not match its dimensions.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidParams is returned for non-positive cell sizes, fewer than two
	// bins, or cells that do not fit the image at least once.
	ErrInvalidParams = errors.New("invalid descriptor parameters")
	// ErrBufferSize is returned when the caller's histogram buffer does not
	// hold exactly one grid worth of bins.
	ErrBufferSize = errors.New("histogram buffer size mismatch")
)

// Image is a single-channel row-major grid of intensities.
// The pipeline never writes to Pix.
type Image struct {
	Rows int
	Cols int
	Pix  []float64
}

// NewImage wraps pix as a rows x cols image.
func NewImage(rows, cols int, pix []float64) (*Image, error) {
	img := &Image{Rows: rows, Cols: cols, Pix: pix}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks the dimensions required by the gradient stage.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	if img.Rows < 2 || img.Cols < 2 {
		return fmt.Errorf("%w: %dx%d is smaller than 2x2", ErrInvalidImage, img.Rows, img.Cols)
	}
	if len(img.Pix) != img.Rows*img.Cols {
		return fmt.Errorf("%w: %d pixels for %dx%d", ErrInvalidImage, len(img.Pix), img.Rows, img.Cols)
	}
	return nil
}

// At returns the intensity at row y, column x.
func (img *Image) At(y, x int) float64 {
	return img.Pix[y*img.Cols+x]
}

// Window copies the rows x cols region whose top-left corner is (y, x)
// into dst, reallocating dst.Pix when it is too small. It is used to cut
// candidate windows out of a scene without allocating per evaluation.
func (img *Image) Window(y, x, rows, cols int, dst *Image) error {
	if y < 0 || x < 0 || rows < 1 || cols < 1 || y+rows > img.Rows || x+cols > img.Cols {
		return fmt.Errorf("%w: window (%d,%d) %dx%d outside %dx%d",
			ErrInvalidImage, y, x, rows, cols, img.Rows, img.Cols)
	}

	n := rows * cols
	if cap(dst.Pix) < n {
		dst.Pix = make([]float64, n)
	}
	dst.Pix = dst.Pix[:n]
	dst.Rows = rows
	dst.Cols = cols

	for r := 0; r < rows; r++ {
		src := img.Pix[(y+r)*img.Cols+x : (y+r)*img.Cols+x+cols]
		copy(dst.Pix[r*cols:(r+1)*cols], src)
	}
	return nil
}

// Params selects the cell geometry and orientation resolution.
type Params struct {
	CellWidth  int `json:"cellWidth"`
	CellHeight int `json:"cellHeight"`
	Bins       int `json:"bins"`
}

// DefaultParams returns 8x8 cells with 9 orientation bins.
func DefaultParams() Params {
	return Params{CellWidth: 8, CellHeight: 8, Bins: 9}
}

// Validate checks the parameter preconditions independent of any image.
func (p Params) Validate() error {
	if p.CellWidth < 1 || p.CellHeight < 1 {
		return fmt.Errorf("%w: cell size %dx%d must be positive", ErrInvalidParams, p.CellWidth, p.CellHeight)
	}
	if p.Bins < 2 {
		return fmt.Errorf("%w: need at least 2 bins, got %d", ErrInvalidParams, p.Bins)
	}
	return nil
}

// Grid is the cell layout a set of Params produces for a given image.
type Grid struct {
	CellsY int `json:"cellsY"`
	CellsX int `json:"cellsX"`
	Bins   int `json:"bins"`
}

// GridFor derives the cell grid for a rows x cols image. Remainder rows and
// columns that do not fill a whole cell are dropped.
func (p Params) GridFor(rows, cols int) Grid {
	return Grid{
		CellsY: rows / p.CellHeight,
		CellsX: cols / p.CellWidth,
		Bins:   p.Bins,
	}
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	return g.CellsY * g.CellsX
}

// Len returns the histogram buffer length the grid needs.
func (g Grid) Len() int {
	return g.CellsY * g.CellsX * g.Bins
}

// check validates image, params and buffer together before a pipeline run.
func check(img *Image, p Params, hist []float64) (Grid, error) {
	if err := img.Validate(); err != nil {
		return Grid{}, err
	}
	if err := p.Validate(); err != nil {
		return Grid{}, err
	}

	grid := p.GridFor(img.Rows, img.Cols)
	if grid.Cells() == 0 {
		return Grid{}, fmt.Errorf("%w: %dx%d cells do not fit a %dx%d image",
			ErrInvalidParams, p.CellWidth, p.CellHeight, img.Cols, img.Rows)
	}
	if len(hist) != grid.Len() {
		return Grid{}, fmt.Errorf("%w: got %d, need %d (%dx%d cells x %d bins)",
			ErrBufferSize, len(hist), grid.Len(), grid.CellsY, grid.CellsX, grid.Bins)
	}
	return grid, nil
}
