// Package locate finds the window of a scene whose HOG descriptor is closest
// to a template's descriptor.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/opt"
	"gonum.org/v1/gonum/floats"
)

// ErrTemplateTooLarge is returned when the template does not fit in the scene.
var ErrTemplateTooLarge = errors.New("template larger than scene")

// Evaluation is one scored window offset.
type Evaluation struct {
	Index    int     `json:"index"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Distance float64 `json:"distance"`
}

// Result is the best window found.
type Result struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Distance    float64 `json:"distance"`
	Evaluations int     `json:"evaluations"`
}

// Locator scores windows with a shared extractor.
type Locator struct {
	extractor *hog.Extractor
	params    hog.Params
	trace     func(Evaluation)
}

// New returns a Locator. extractor may be nil for the sequential pipeline.
// trace, when non-nil, receives every distinct window evaluated.
func New(extractor *hog.Extractor, params hog.Params, trace func(Evaluation)) *Locator {
	if extractor == nil {
		extractor = hog.NewExtractor(nil, nil)
	}
	return &Locator{extractor: extractor, params: params, trace: trace}
}

// Locate searches scene for template. The optimizer works on the unit square;
// each point is rounded to an integer window offset, and every offset is
// described at most once. Once ctx is done the remaining evaluations are
// skipped and ctx.Err() is returned.
func (l *Locator) Locate(ctx context.Context, scene, template *hog.Image, optimizer opt.Optimizer) (*Result, error) {
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	want, err := l.extractor.DescribeContext(ctx, template, l.params)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	maxY := scene.Rows - template.Rows
	maxX := scene.Cols - template.Cols
	if maxY < 0 || maxX < 0 {
		return nil, fmt.Errorf("%w: template %dx%d, scene %dx%d",
			ErrTemplateTooLarge, template.Rows, template.Cols, scene.Rows, scene.Cols)
	}

	var window hog.Image
	hist := make([]float64, want.Grid.Len())
	memo := make(map[[2]int]float64)
	best := Evaluation{Distance: math.Inf(1)}
	var evalErr error

	score := func(y, x int) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		key := [2]int{y, x}
		if d, ok := memo[key]; ok {
			return d
		}
		d := math.Inf(1)
		if err := scene.Window(y, x, template.Rows, template.Cols, &window); err != nil {
			evalErr = err
		} else if err := l.extractor.ComputeContext(ctx, &window, l.params, hist); err != nil {
			if ctx.Err() != nil {
				return d
			}
			evalErr = err
		} else {
			d = floats.Distance(hist, want.Hist, 2)
		}
		memo[key] = d

		e := Evaluation{Index: len(memo), X: x, Y: y, Distance: d}
		if len(memo) == 1 || d < best.Distance {
			best = e
		}
		if l.trace != nil {
			l.trace(e)
		}
		return d
	}

	eval := func(u []float64) float64 {
		return score(offset(u[0], maxY), offset(u[1], maxX))
	}

	// Only one placement exists: skip the optimizer.
	if maxY == 0 && maxX == 0 {
		score(0, 0)
	} else {
		optimizer.Run(eval, []float64{0, 0}, []float64{1, 1}, 2)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if evalErr != nil {
		return nil, fmt.Errorf("window evaluation failed: %w", evalErr)
	}

	slog.Info("Template located",
		"x", best.X,
		"y", best.Y,
		"distance", best.Distance,
		"evaluations", len(memo),
	)

	return &Result{
		X:           best.X,
		Y:           best.Y,
		Width:       template.Cols,
		Height:      template.Rows,
		Distance:    best.Distance,
		Evaluations: len(memo),
	}, nil
}

// offset maps u in [0,1] to an integer in [0,limit].
func offset(u float64, limit int) int {
	u = min(max(u, 0), 1)
	return int(math.Round(u * float64(limit)))
}
