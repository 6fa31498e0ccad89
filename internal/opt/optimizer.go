// Package opt defines the black-box minimizer used by template location and
// its mayfly-backed implementation.
package opt

// Optimizer minimizes an objective over a box.
type Optimizer interface {
	// Run minimizes eval over the box [lower[i], upper[i]] for i < dim and
	// returns the best point found and its cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
