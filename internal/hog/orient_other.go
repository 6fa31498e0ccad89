//go:build !amd64

package hog

var hasAVX2 = false

func magOriAVX2(gx, gy, mag, ori []float64, scale float64) {
	magOriScalar(gx, gy, mag, ori, scale)
}
