package hog

import (
	"log/slog"
	"math"
)

// Magnitude/orientation kernels.
//
// Magnitudes are elementwise and vectorize directly: on amd64 with AVX2 they
// are computed four lanes at a time in hypot_amd64.s. VSQRTPD is correctly
// rounded like math.Sqrt, so both backends produce identical bits. The angle
// has no vector instruction and always runs through math.Atan2.

// Backend identifies the kernel used by MagnitudeOrientation.
type Backend int

const (
	BackendScalar Backend = iota // one element at a time
	BackendAVX2                  // 4-lane magnitudes
)

func (b Backend) String() string {
	switch b {
	case BackendAVX2:
		return "avx2"
	case BackendScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Lanes returns the number of magnitudes the backend computes per step.
func (b Backend) Lanes() int {
	if b == BackendAVX2 {
		return 4
	}
	return 1
}

// Supported reports whether the backend can run on this CPU.
func (b Backend) Supported() bool {
	switch b {
	case BackendScalar:
		return true
	case BackendAVX2:
		return hasAVX2
	default:
		return false
	}
}

// ActiveBackend reports which kernel was selected at initialization.
var ActiveBackend Backend

// magOriKernel processes len(gx) elements. scale converts radians to bins.
type magOriKernel func(gx, gy, mag, ori []float64, scale float64)

var magOri magOriKernel

func init() {
	ActiveBackend = BackendScalar
	if BackendAVX2.Supported() {
		ActiveBackend = BackendAVX2
	}
	magOri = kernelFor(ActiveBackend)
	slog.Debug("Orientation kernel initialized", "backend", ActiveBackend.String(), "lanes", ActiveBackend.Lanes())
}

func kernelFor(b Backend) magOriKernel {
	if b == BackendAVX2 {
		return magOriAVX2
	}
	return magOriScalar
}

// MagnitudeOrientation computes mag = sqrt(gx²+gy²) and the gradient angle in
// bin space, atan2(gy, gx) shifted into [0, 2π) and scaled by bins/2π.
// All four slices must have the same length.
func MagnitudeOrientation(gx, gy []float64, bins int, mag, ori []float64) {
	magOri(gx, gy, mag, ori, binScale(bins))
}

func binScale(bins int) float64 {
	return float64(bins) / (2 * math.Pi)
}

// magnitude keeps both products rounded so the compiler cannot fuse them
// into an FMA, which would break agreement with the vector kernel.
func magnitude(gx, gy float64) float64 {
	return math.Sqrt(float64(gx*gx) + float64(gy*gy))
}

func orientation(gx, gy, scale float64) float64 {
	theta := math.Atan2(gy, gx)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	return theta * scale
}

func magOriScalar(gx, gy, mag, ori []float64, scale float64) {
	magOriTail(gx, gy, mag, ori, scale, 0)
}

// magOriTail handles elements [from, len(gx)) one at a time.
func magOriTail(gx, gy, mag, ori []float64, scale float64, from int) {
	for i := from; i < len(gx); i++ {
		mag[i] = magnitude(gx[i], gy[i])
		ori[i] = orientation(gx[i], gy[i], scale)
	}
}
