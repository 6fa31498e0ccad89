package locate

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/cwbudde/hogdesc/internal/opt"
)

// gridOptimizer evaluates a regular lattice over the box and returns the best
// point, which makes search results deterministic.
type gridOptimizer struct {
	steps int
	calls int
}

func (g *gridOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	g.calls++
	var best []float64
	bestCost := 0.0
	for i := 0; i <= g.steps; i++ {
		for j := 0; j <= g.steps; j++ {
			p := []float64{
				lower[0] + float64(i)/float64(g.steps)*(upper[0]-lower[0]),
				lower[1] + float64(j)/float64(g.steps)*(upper[1]-lower[1]),
			}
			c := eval(p)
			if best == nil || c < bestCost {
				best, bestCost = p, c
			}
		}
	}
	return best, bestCost
}

type failingOptimizer struct{ t *testing.T }

func (f failingOptimizer) Run(func([]float64) float64, []float64, []float64, int) ([]float64, float64) {
	f.t.Fatal("optimizer should not run")
	return nil, 0
}

func randomScene(rows, cols int, seed int64) *hog.Image {
	rng := rand.New(rand.NewSource(seed))
	pix := make([]float64, rows*cols)
	for i := range pix {
		pix[i] = rng.Float64()
	}
	return &hog.Image{Rows: rows, Cols: cols, Pix: pix}
}

func cut(t *testing.T, scene *hog.Image, y, x, rows, cols int) *hog.Image {
	t.Helper()
	var win hog.Image
	if err := scene.Window(y, x, rows, cols, &win); err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	return &win
}

var testParams = hog.Params{CellWidth: 4, CellHeight: 4, Bins: 9}

func TestLocateFindsExactWindow(t *testing.T) {
	scene := randomScene(24, 32, 1)
	template := cut(t, scene, 5, 7, 8, 8)

	var traced []Evaluation
	l := New(nil, testParams, func(e Evaluation) { traced = append(traced, e) })

	// 48 steps hit every offset in [0,16] x [0,24].
	res, err := l.Locate(context.Background(), scene, template, &gridOptimizer{steps: 48})
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	if res.X != 7 || res.Y != 5 {
		t.Errorf("Expected offset (7,5), got (%d,%d)", res.X, res.Y)
	}
	if res.Distance != 0 {
		t.Errorf("Expected zero distance, got %f", res.Distance)
	}
	if res.Width != 8 || res.Height != 8 {
		t.Errorf("Expected 8x8 window, got %dx%d", res.Width, res.Height)
	}
	if res.Evaluations != 17*25 {
		t.Errorf("Expected %d distinct evaluations, got %d", 17*25, res.Evaluations)
	}
	if len(traced) != res.Evaluations {
		t.Errorf("Expected %d traced evaluations, got %d", res.Evaluations, len(traced))
	}
	for i, e := range traced {
		if e.Index != i+1 {
			t.Fatalf("Trace entry %d has index %d", i, e.Index)
		}
	}
}

func TestLocateMemoizesOffsets(t *testing.T) {
	scene := randomScene(12, 12, 2)
	template := cut(t, scene, 0, 0, 8, 8)

	l := New(nil, testParams, nil)
	res, err := l.Locate(context.Background(), scene, template, &gridOptimizer{steps: 100})
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	// 101x101 lattice points collapse onto 5x5 integer offsets.
	if res.Evaluations != 25 {
		t.Errorf("Expected 25 evaluations, got %d", res.Evaluations)
	}
}

func TestLocateSingleWindowSkipsOptimizer(t *testing.T) {
	scene := randomScene(8, 8, 3)

	l := New(nil, testParams, nil)
	res, err := l.Locate(context.Background(), scene, scene, failingOptimizer{t})
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	if res.Evaluations != 1 || res.X != 0 || res.Y != 0 || res.Distance != 0 {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestLocateErrors(t *testing.T) {
	scene := randomScene(8, 8, 4)
	l := New(nil, testParams, nil)

	if _, err := l.Locate(context.Background(), scene, randomScene(12, 8, 5), failingOptimizer{t}); !errors.Is(err, ErrTemplateTooLarge) {
		t.Errorf("Expected ErrTemplateTooLarge, got %v", err)
	}

	if _, err := l.Locate(context.Background(), scene, randomScene(2, 2, 6), failingOptimizer{t}); !errors.Is(err, hog.ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for template smaller than a cell, got %v", err)
	}

	if _, err := l.Locate(context.Background(), &hog.Image{Rows: 1, Cols: 8, Pix: make([]float64, 8)}, scene, failingOptimizer{t}); !errors.Is(err, hog.ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage for a one-row scene, got %v", err)
	}
}

func TestLocateWithMayfly(t *testing.T) {
	scene := randomScene(20, 20, 7)
	template := cut(t, scene, 4, 6, 8, 8)

	l := New(nil, testParams, nil)
	res, err := l.Locate(context.Background(), scene, template, opt.NewMayfly(10, 20, 42))
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}

	if res.X < 0 || res.X > 12 || res.Y < 0 || res.Y > 12 {
		t.Errorf("Offset (%d,%d) outside the scene", res.X, res.Y)
	}
	if res.Evaluations < 1 || res.Evaluations > 13*13 {
		t.Errorf("Unexpected evaluation count %d", res.Evaluations)
	}
}

func TestOffset(t *testing.T) {
	tests := []struct {
		u     float64
		limit int
		want  int
	}{
		{0, 10, 0},
		{1, 10, 10},
		{0.5, 10, 5},
		{0.44, 10, 4},
		{-0.2, 10, 0},
		{1.7, 10, 10},
		{0.9, 0, 0},
	}
	for _, tt := range tests {
		if got := offset(tt.u, tt.limit); got != tt.want {
			t.Errorf("offset(%v, %d) = %d, want %d", tt.u, tt.limit, got, tt.want)
		}
	}
}

func TestLocateStopsWhenCancelled(t *testing.T) {
	scene := randomScene(24, 32, 8)
	template := cut(t, scene, 2, 2, 8, 8)

	ctx, cancel := context.WithCancel(context.Background())
	evaluated := 0
	l := New(nil, testParams, func(Evaluation) {
		evaluated++
		if evaluated == 3 {
			cancel()
		}
	})

	_, err := l.Locate(ctx, scene, template, &gridOptimizer{steps: 48})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if evaluated != 3 {
		t.Errorf("Expected evaluation to stop after 3 windows, got %d", evaluated)
	}
}
