package hog

// Gradient writes the x and y derivatives of img into gx and gy, which must
// both hold img.Rows*img.Cols values.
//
// Interior pixels use central differences. The y derivative is "row above
// minus row below", so an intensity increasing downwards has a negative gy.
// Border pixels fall back to the one-sided difference with their single
// neighbor. A one-column image has gx == 0 and a one-row image has gy == 0.
func Gradient(img *Image, gx, gy []float64) {
	gradientRows(img, gx, gy, 0, img.Rows)
}

// gradientRows fills rows [start, end) of gx and gy. Rows only read the image,
// so disjoint row bands can run concurrently.
func gradientRows(img *Image, gx, gy []float64, start, end int) {
	rows, cols := img.Rows, img.Cols
	pix := img.Pix

	for y := start; y < end; y++ {
		off := y * cols
		row := pix[off : off+cols]
		outX := gx[off : off+cols]

		if cols == 1 {
			outX[0] = 0
		} else {
			outX[0] = row[1] - row[0]
			for x := 1; x < cols-1; x++ {
				outX[x] = row[x+1] - row[x-1]
			}
			outX[cols-1] = row[cols-1] - row[cols-2]
		}

		outY := gy[off : off+cols]
		switch {
		case rows == 1:
			clear(outY)
		case y == 0:
			below := pix[cols : 2*cols]
			for x := range outY {
				outY[x] = row[x] - below[x]
			}
		case y == rows-1:
			above := pix[off-cols : off]
			for x := range outY {
				outY[x] = above[x] - row[x]
			}
		default:
			above := pix[off-cols : off]
			below := pix[off+cols : off+2*cols]
			for x := range outY {
				outY[x] = above[x] - below[x]
			}
		}
	}
}
