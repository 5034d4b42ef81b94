package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelsplit/internal/domain"
)

const (
	BlurRadius = 3

	// maxPixels bounds the output of a zoom so a large factor cannot exhaust memory.
	maxPixels = 1 << 28
)

// Resampler produces a smooth resize of g to exactly width x height.
type Resampler interface {
	Resample(g PixelGrid, width, height int) (PixelGrid, error)
}

// ZoomSize returns round(w*f) x round(h*f) after validating f and the result.
func ZoomSize(width, height int, factor float64) (int, int, error) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 0, 0, domain.ValidationFault("zoom factor must be positive (received: %g)", factor)
	}
	newWidth := math.Round(float64(width) * factor)
	newHeight := math.Round(float64(height) * factor)
	if newWidth <= 0 || newHeight <= 0 {
		return 0, 0, domain.ValidationFault("invalid dimensions after zoom: %dx%d", int(newWidth), int(newHeight))
	}
	if newWidth*newHeight > maxPixels {
		return 0, 0, domain.ValidationFault("zoomed image too large: %.0fx%.0f", newWidth, newHeight)
	}
	return int(newWidth), int(newHeight), nil
}

func Zoom(r Resampler, g PixelGrid, factor float64) (PixelGrid, error) {
	width, height, err := ZoomSize(g.Width, g.Height, factor)
	if err != nil {
		return PixelGrid{}, err
	}
	if width == g.Width && height == g.Height {
		return clone(g), nil
	}
	return r.Resample(g, width, height)
}

// CatmullRom is the default bicubic resampler.
type CatmullRom struct{}

func (CatmullRom) Resample(g PixelGrid, width, height int) (PixelGrid, error) {
	if width <= 0 || height <= 0 {
		return PixelGrid{}, domain.ValidationFault("invalid resample target %dx%d", width, height)
	}
	return FromImage(imaging.Resize(g.ToImage(), width, height, imaging.CatmullRom)), nil
}

// ClampRegion clamps the region origin into the image and checks that the
// requested size fits from there. Size is never truncated.
func ClampRegion(width, height int, r domain.Region) (image.Rectangle, error) {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, domain.ValidationFault("source image has invalid dimensions %dx%d", width, height)
	}
	if r.W <= 0 || r.H <= 0 {
		return image.Rectangle{}, domain.ValidationFault("crop size must be positive (received: %dx%d)", r.W, r.H)
	}
	startX := clamp(r.X, 0, width-1)
	startY := clamp(r.Y, 0, height-1)
	if r.W > width-startX || r.H > height-startY {
		return image.Rectangle{}, domain.ValidationFault(
			"crop region %dx%d at (%d,%d) exceeds image bounds %dx%d",
			r.W, r.H, startX, startY, width, height,
		)
	}
	return image.Rect(startX, startY, startX+r.W, startY+r.H), nil
}

func Crop(g PixelGrid, r domain.Region) (PixelGrid, error) {
	rect, err := ClampRegion(g.Width, g.Height, r)
	if err != nil {
		return PixelGrid{}, err
	}
	out := NewGrid(rect.Dx(), rect.Dy())
	for y := 0; y < out.Height; y++ {
		src := (rect.Min.Y+y)*g.Width + rect.Min.X
		copy(out.Pix[y*out.Width:(y+1)*out.Width], g.Pix[src:src+out.Width])
	}
	return out, nil
}

// Blur applies a box blur: each channel becomes the integer mean over the
// in-bounds part of the (2*radius+1)^2 window. Neighbours outside the image
// count toward neither sum nor divisor.
func Blur(g PixelGrid, radius int) PixelGrid {
	if radius <= 0 || g.Empty() {
		return clone(g)
	}

	// Summed-area tables with a zero row and column in front.
	w, h := g.Width, g.Height
	stride := w + 1
	sumR := make([]int64, stride*(h+1))
	sumG := make([]int64, stride*(h+1))
	sumB := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowR, rowG, rowB int64
		for x := 0; x < w; x++ {
			px := g.Pix[y*w+x]
			rowR += int64(px.R)
			rowG += int64(px.G)
			rowB += int64(px.B)
			i := (y+1)*stride + x + 1
			sumR[i] = sumR[i-stride] + rowR
			sumG[i] = sumG[i-stride] + rowG
			sumB[i] = sumB[i-stride] + rowB
		}
	}

	area := func(sum []int64, x0, y0, x1, y1 int) int64 {
		return sum[y1*stride+x1] - sum[y0*stride+x1] - sum[y1*stride+x0] + sum[y0*stride+x0]
	}

	out := NewGrid(w, h)
	for y := 0; y < h; y++ {
		y0 := max(0, y-radius)
		y1 := min(h, y+radius+1)
		for x := 0; x < w; x++ {
			x0 := max(0, x-radius)
			x1 := min(w, x+radius+1)
			count := int64((x1 - x0) * (y1 - y0))
			out.Pix[y*w+x] = RGB{
				R: uint8(area(sumR, x0, y0, x1, y1) / count),
				G: uint8(area(sumG, x0, y0, x1, y1) / count),
				B: uint8(area(sumB, x0, y0, x1, y1) / count),
			}
		}
	}
	return out
}

// SplitHalves cuts g at column floor(width/2).
func SplitHalves(g PixelGrid) (PixelGrid, PixelGrid, error) {
	if g.Width < 2 {
		return PixelGrid{}, PixelGrid{}, domain.ValidationFault("image width %d is too narrow to split", g.Width)
	}
	half := g.Width / 2
	left, err := Crop(g, domain.Region{X: 0, Y: 0, W: half, H: g.Height})
	if err != nil {
		return PixelGrid{}, PixelGrid{}, err
	}
	right, err := Crop(g, domain.Region{X: half, Y: 0, W: g.Width - half, H: g.Height})
	if err != nil {
		return PixelGrid{}, PixelGrid{}, err
	}
	return left, right, nil
}

var background = color.NRGBA{R: 0, G: 0, B: 0, A: 0xff}

// Compose places left at (0,0) and right at (left.Width,0) on an opaque black
// canvas as tall as the taller input. Shorter inputs are top-aligned.
func Compose(left, right PixelGrid) PixelGrid {
	width := left.Width + right.Width
	height := max(left.Height, right.Height)
	if width == 0 || height == 0 {
		return NewGrid(width, height)
	}

	canvas := imaging.New(width, height, background)
	if !left.Empty() {
		canvas = imaging.Paste(canvas, left.ToImage(), image.Pt(0, 0))
	}
	if !right.Empty() {
		canvas = imaging.Paste(canvas, right.ToImage(), image.Pt(left.Width, 0))
	}
	return FromImage(canvas)
}

func clone(g PixelGrid) PixelGrid {
	out := NewGrid(g.Width, g.Height)
	copy(out.Pix, g.Pix)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
