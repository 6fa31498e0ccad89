package hog

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwbudde/hogdesc/internal/workerpool"
)

// Stage names one step of the pipeline, reported to an Observer.
type Stage string

const (
	StageGradient    Stage = "gradient"
	StageOrientation Stage = "orientation"
	StageHistogram   Stage = "histogram"
	StageNormalize   Stage = "normalize"
)

// Observer is notified after each stage completes.
type Observer func(stage Stage, elapsed time.Duration)

// Descriptor is a computed histogram array together with its layout.
type Descriptor struct {
	Params Params    `json:"params"`
	Grid   Grid      `json:"grid"`
	Hist   []float64 `json:"hist"`
}

// Cell returns the bins of cell (cy, cx). The slice aliases d.Hist.
func (d *Descriptor) Cell(cy, cx int) []float64 {
	off := (cy*d.Grid.CellsX + cx) * d.Grid.Bins
	return d.Hist[off : off+d.Grid.Bins]
}

// Compute runs the full pipeline on img and writes the normalized histogram
// array into hist, which must hold exactly p.GridFor(img.Rows, img.Cols).Len()
// values. hist is fully overwritten. Invalid input is rejected before any
// stage runs and leaves hist untouched.
func Compute(img *Image, p Params, hist []float64) error {
	return defaultExtractor.Compute(img, p, hist)
}

// Describe allocates a histogram buffer and runs Compute.
func Describe(img *Image, p Params) (*Descriptor, error) {
	return defaultExtractor.Describe(img, p)
}

var defaultExtractor = &Extractor{}

// Extractor runs the pipeline, optionally spreading each stage over a worker
// pool. The zero value is sequential. An Extractor holds no per-image state
// and may be shared between goroutines.
type Extractor struct {
	pool     *workerpool.Pool
	observer Observer
}

// NewExtractor returns an extractor using pool (may be nil) and observer
// (may be nil).
func NewExtractor(pool *workerpool.Pool, observer Observer) *Extractor {
	return &Extractor{pool: pool, observer: observer}
}

// Describe allocates a histogram buffer and runs Compute.
func (e *Extractor) Describe(img *Image, p Params) (*Descriptor, error) {
	return e.DescribeContext(context.Background(), img, p)
}

// DescribeContext is Describe with cancellation; see ComputeContext.
func (e *Extractor) DescribeContext(ctx context.Context, img *Image, p Params) (*Descriptor, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	grid := p.GridFor(img.Rows, img.Cols)
	hist := make([]float64, grid.Len())
	if err := e.ComputeContext(ctx, img, p, hist); err != nil {
		return nil, err
	}
	return &Descriptor{Params: p, Grid: grid, Hist: hist}, nil
}

// Compute is the pipeline entry point; see the package-level Compute.
func (e *Extractor) Compute(img *Image, p Params, hist []float64) error {
	return e.ComputeContext(context.Background(), img, p, hist)
}

// ComputeContext is Compute with cancellation. Once ctx is done the
// remaining work of the current stage is skipped, no later stage runs and
// ctx.Err() is returned; hist then holds partial results.
func (e *Extractor) ComputeContext(ctx context.Context, img *Image, p Params, hist []float64) error {
	grid, err := check(img, p, hist)
	if err != nil {
		return err
	}

	n := img.Rows * img.Cols
	scratch := make([]float64, 4*n)
	gx := scratch[0*n : 1*n]
	gy := scratch[1*n : 2*n]
	mag := scratch[2*n : 3*n]
	ori := scratch[3*n : 4*n]

	start := time.Now()
	err = e.pool.ParallelForContext(ctx, img.Rows, func(lo, hi int) {
		gradientRows(img, gx, gy, lo, hi)
	})
	if err != nil {
		return err
	}
	start = e.done(StageGradient, start)

	scale := binScale(p.Bins)
	err = e.pool.ParallelForContext(ctx, img.Rows, func(lo, hi int) {
		magOri(gx[lo*img.Cols:hi*img.Cols], gy[lo*img.Cols:hi*img.Cols],
			mag[lo*img.Cols:hi*img.Cols], ori[lo*img.Cols:hi*img.Cols], scale)
	})
	if err != nil {
		return err
	}
	start = e.done(StageOrientation, start)

	// Returns only after every cell row is accumulated, which is the barrier
	// the normalization pass below depends on.
	err = e.pool.ParallelForContext(ctx, grid.CellsY, func(lo, hi int) {
		accumulateCellRows(mag, ori, img.Cols, p, grid, hist, lo, hi)
	})
	if err != nil {
		return err
	}
	start = e.done(StageHistogram, start)

	err = e.pool.ParallelForContext(ctx, grid.Cells(), func(lo, hi int) {
		normalizeCells(hist, grid.Bins, lo, hi)
	})
	if err != nil {
		return err
	}
	e.done(StageNormalize, start)

	slog.Debug("Descriptor computed",
		"rows", img.Rows,
		"cols", img.Cols,
		"cells_y", grid.CellsY,
		"cells_x", grid.CellsX,
		"bins", grid.Bins,
	)
	return nil
}

func (e *Extractor) done(stage Stage, start time.Time) time.Time {
	now := time.Now()
	if e.observer != nil {
		e.observer(stage, now.Sub(start))
	}
	return now
}
