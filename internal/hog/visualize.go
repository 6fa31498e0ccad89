package hog

import (
	"image"
	"image/color"
	"math"
)

// Visualize renders d as a grayscale image with one star glyph per cell.
// Each bin draws a line through the cell center along the edge direction
// (perpendicular to the bin's gradient angle); longer, brighter lines mean
// stronger bins. cellPixels is the side of each cell's square in the output
// and is raised to 3 when smaller.
func Visualize(d *Descriptor, cellPixels int) *image.Gray {
	if cellPixels < 3 {
		cellPixels = 3
	}

	out := image.NewGray(image.Rect(0, 0, d.Grid.CellsX*cellPixels, d.Grid.CellsY*cellPixels))
	radius := float64(cellPixels-1) / 2
	bins := d.Grid.Bins

	for cy := 0; cy < d.Grid.CellsY; cy++ {
		for cx := 0; cx < d.Grid.CellsX; cx++ {
			cell := d.Cell(cy, cx)
			peak := 0.0
			for _, v := range cell {
				peak = max(peak, v)
			}
			if peak == 0 {
				continue
			}

			centerX := float64(cx*cellPixels) + radius
			centerY := float64(cy*cellPixels) + radius

			for b, v := range cell {
				if v == 0 {
					continue
				}
				strength := v / peak
				// Gradient angle of the bin center; +y in the image is down,
				// while gy was measured upwards.
				theta := 2*math.Pi*(float64(b)+0.5)/float64(bins) + math.Pi/2
				dx := math.Cos(theta) * radius * strength
				dy := -math.Sin(theta) * radius * strength
				shade := uint8(math.Round(255 * strength))

				drawLine(out,
					int(math.Round(centerX-dx)), int(math.Round(centerY-dy)),
					int(math.Round(centerX+dx)), int(math.Round(centerY+dy)),
					shade)
			}
		}
	}

	return out
}

// drawLine rasterizes a segment with Bresenham's algorithm, keeping the
// brighter value where glyph lines overlap.
func drawLine(img *image.Gray, x0, y0, x1, y1 int, shade uint8) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		if (image.Point{X: x0, Y: y0}).In(img.Rect) && img.GrayAt(x0, y0).Y < shade {
			img.SetGray(x0, y0, color.Gray{Y: shade})
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
