// Package imaging holds the codec and the local transform primitives that
// operate on PixelGrid: zoom, crop, box blur, horizontal split and compose.
//
// Grids are RGB only. Any alpha channel in a source image is dropped on load,
// and encoded output is always fully opaque.
package imaging

import (
	"image"
	"image/color"
)

type RGB struct {
	R, G, B uint8
}

// PixelGrid is a row-major RGB raster. len(Pix) == Width*Height always holds
// for grids built by this package.
type PixelGrid struct {
	Width  int
	Height int
	Pix    []RGB
}

func NewGrid(width, height int) PixelGrid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return PixelGrid{
		Width:  width,
		Height: height,
		Pix:    make([]RGB, width*height),
	}
}

// Filled returns a grid where every pixel is c.
func Filled(width, height int, c RGB) PixelGrid {
	g := NewGrid(width, height)
	for i := range g.Pix {
		g.Pix[i] = c
	}
	return g
}

func (g PixelGrid) At(x, y int) RGB {
	return g.Pix[y*g.Width+x]
}

func (g PixelGrid) Set(x, y int, c RGB) {
	g.Pix[y*g.Width+x] = c
}

func (g PixelGrid) Empty() bool {
	return g.Width == 0 || g.Height == 0
}

// FromImage copies img into a grid, un-premultiplying and discarding alpha.
func FromImage(img image.Image) PixelGrid {
	b := img.Bounds()
	g := NewGrid(b.Dx(), b.Dy())

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < g.Height; y++ {
			row := nrgba.Pix[nrgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < g.Width; x++ {
				i := x * 4
				g.Pix[y*g.Width+x] = RGB{R: row[i], G: row[i+1], B: row[i+2]}
			}
		}
		return g
	}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			g.Pix[y*g.Width+x] = RGB{R: c.R, G: c.G, B: c.B}
		}
	}
	return g
}

// ToImage renders the grid as an opaque NRGBA image anchored at (0,0).
func (g PixelGrid) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i, px := range g.Pix {
		j := i * 4
		img.Pix[j] = px.R
		img.Pix[j+1] = px.G
		img.Pix[j+2] = px.B
		img.Pix[j+3] = 0xff
	}
	return img
}
