// Package source turns image files into the single-channel float images the
// descriptor pipeline consumes.
//
// Decoding, EXIF orientation and resizing go through
// github.com/disintegration/imaging, optional Gaussian pre-smoothing through
// github.com/anthonynsimon/bild, and the perceptual lightness mode through
// github.com/lucasb-eyer/go-colorful. Intensities are returned in [0, 1].
package source

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/blur"
	"github.com/cwbudde/hogdesc/internal/hog"
	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// GrayMode selects how color pixels are reduced to one channel.
type GrayMode string

const (
	// GrayLuma uses ITU-R BT.601 luma weights.
	GrayLuma GrayMode = "luma"
	// GrayLab uses CIE L* lightness.
	GrayLab GrayMode = "lab"
)

// ErrUnknownGrayMode is returned for a gray mode name that is not recognized.
var ErrUnknownGrayMode = errors.New("unknown gray mode")

// ParseGrayMode maps user input to a GrayMode. Empty input selects GrayLuma.
func ParseGrayMode(name string) (GrayMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "luma", "bt601":
		return GrayLuma, nil
	case "lab", "lightness":
		return GrayLab, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownGrayMode, name)
	}
}

// Options controls preprocessing before gray conversion.
type Options struct {
	Gray GrayMode
	// Blur is the Gaussian radius in pixels; 0 disables smoothing.
	Blur float64
	// Width and Height resize the image when either is positive. A zero
	// side keeps the aspect ratio.
	Width  int
	Height int
}

// Load decodes the file at path and converts it with FromImage.
func Load(path string, opts Options) (*hog.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img, opts)
}

// FromImage preprocesses img and converts it to a hog.Image.
func FromImage(img image.Image, opts Options) (*hog.Image, error) {
	mode := opts.Gray
	if mode == "" {
		mode = GrayLuma
	}
	if mode != GrayLuma && mode != GrayLab {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGrayMode, mode)
	}

	if opts.Width > 0 || opts.Height > 0 {
		img = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	}
	if opts.Blur > 0 {
		img = blur.Gaussian(img, opts.Blur)
	}

	var out *hog.Image
	switch mode {
	case GrayLab:
		out = lightness(img)
	default:
		out = luma(img)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Image converted", "rows", out.Rows, "cols", out.Cols, "gray", string(mode), "blur", opts.Blur)
	return out, nil
}

func luma(img image.Image) *hog.Image {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	out := &hog.Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
	for y := 0; y < rows; y++ {
		line := gray.Pix[y*gray.Stride : y*gray.Stride+cols*4]
		for x := 0; x < cols; x++ {
			out.Pix[y*cols+x] = float64(line[x*4]) / 255
		}
	}
	return out
}

func lightness(img image.Image) *hog.Image {
	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()

	out := &hog.Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c, _ := colorful.MakeColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			l, _, _ := c.Lab()
			out.Pix[y*cols+x] = l
		}
	}
	return out
}

// DefaultCacheSize is the capacity used when NewCache gets a non-positive
// size.
const DefaultCacheSize = 16

type cached struct {
	img     image.Image
	modTime time.Time
	size    int64
}

// Cache keeps up to a fixed number of decoded images keyed by path, evicting
// the least recently used one when full. An entry is decoded again when the
// file's modification time or size changed since it was cached. It is safe
// for concurrent use.
type Cache struct {
	images *lru.Cache[string, cached]
}

// NewCache returns an empty cache holding at most size images.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	images, err := lru.New[string, cached](size)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Cache{images: images}
}

// Decode returns the cached image for path, decoding it on first use or
// after the file changed.
func (c *Cache) Decode(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		c.images.Remove(path)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if e, ok := c.images.Get(path); ok {
		if e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
			return e.img, nil
		}
		slog.Debug("Cached image is stale", "path", path)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		c.images.Remove(path)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if evicted := c.images.Add(path, cached{img: img, modTime: info.ModTime(), size: info.Size()}); evicted {
		slog.Debug("Image cache full, evicted oldest entry", "cached", c.images.Len())
	}
	return img, nil
}

// Load is Load backed by the cache.
func (c *Cache) Load(path string, opts Options) (*hog.Image, error) {
	img, err := c.Decode(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img, opts)
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	return c.images.Len()
}
