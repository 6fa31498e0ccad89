package hog

import "golang.org/x/sys/cpu"

var hasAVX2 = cpu.X86.HasAVX2 && cpu.X86.HasAVX

// hypotAVX2 writes sqrt(gx[i]²+gy[i]²) to mag[i] for i < n. n must be a
// multiple of 4.
//
//go:noescape
func hypotAVX2(gx, gy, mag *float64, n int)

func magOriAVX2(gx, gy, mag, ori []float64, scale float64) {
	n := len(gx)
	full := n - n%4

	if full > 0 {
		_, _ = gy[full-1], mag[full-1]
		hypotAVX2(&gx[0], &gy[0], &mag[0], full)
		for i := 0; i < full; i++ {
			ori[i] = orientation(gx[i], gy[i], scale)
		}
	}

	magOriTail(gx, gy, mag, ori, scale, full)
}
