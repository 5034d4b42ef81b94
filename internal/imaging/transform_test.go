package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/dunamismax/pixelsplit/internal/domain"
)

func TestZoomDimensions(t *testing.T) {
	cases := []struct {
		w, h         int
		factor       float64
		wantW, wantH int
	}{
		{32, 32, 2.0, 64, 64},
		{33, 17, 0.5, 17, 9},
		{10, 3, 1.25, 13, 4},
		{7, 5, 1.0, 7, 5},
		{100, 40, 0.1, 10, 4},
	}
	for _, tc := range cases {
		out, err := Zoom(CatmullRom{}, gradientGrid(tc.w, tc.h), tc.factor)
		if err != nil {
			t.Fatalf("zoom %dx%d by %g: %v", tc.w, tc.h, tc.factor, err)
		}
		if out.Width != tc.wantW || out.Height != tc.wantH {
			t.Fatalf("zoom %dx%d by %g: expected %dx%d, got %dx%d", tc.w, tc.h, tc.factor, tc.wantW, tc.wantH, out.Width, out.Height)
		}
		if len(out.Pix) != out.Width*out.Height {
			t.Fatalf("zoomed grid backing slice has %d pixels", len(out.Pix))
		}
	}
}

func TestZoomFaults(t *testing.T) {
	g := gradientGrid(4, 4)

	for _, factor := range []float64{0, -1.5} {
		_, err := Zoom(CatmullRom{}, g, factor)
		assertFault(t, err, domain.FaultValidation)
	}

	// 4 * 0.1 rounds to 0.
	_, err := Zoom(CatmullRom{}, g, 0.1)
	assertFault(t, err, domain.FaultValidation)
}

func TestCropClampsOrigin(t *testing.T) {
	g := gradientGrid(40, 40)

	out, err := Crop(g, domain.Region{X: -5, Y: -9, W: 10, H: 10})
	if err != nil {
		t.Fatalf("crop with negative origin: %v", err)
	}
	if out.At(0, 0) != g.At(0, 0) {
		t.Fatalf("expected origin clamped to (0,0)")
	}

	out, err = Crop(g, domain.Region{X: 10, Y: 10, W: 20, H: 20})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if out.Width != 20 || out.Height != 20 {
		t.Fatalf("expected 20x20 crop, got %dx%d", out.Width, out.Height)
	}
	if out.At(0, 0) != g.At(10, 10) || out.At(19, 19) != g.At(29, 29) {
		t.Fatal("crop copied the wrong pixels")
	}

	rect, err := ClampRegion(40, 40, domain.Region{X: 500, Y: 500, W: 1, H: 1})
	if err != nil {
		t.Fatalf("expected 1x1 crop at far corner to fit, got %v", err)
	}
	if rect.Min != image.Pt(39, 39) {
		t.Fatalf("expected origin clamped to (39,39), got %v", rect.Min)
	}
}

func TestCropOutOfRange(t *testing.T) {
	g := gradientGrid(40, 40)
	for _, r := range []domain.Region{
		{X: 30, Y: 0, W: 20, H: 5},
		{X: 0, Y: 35, W: 5, H: 6},
		{X: 100, Y: 0, W: 2, H: 2},
		{X: 0, Y: 0, W: 0, H: 2},
		{X: 0, Y: 0, W: 41, H: 40},
	} {
		_, err := Crop(g, r)
		assertFault(t, err, domain.FaultValidation)
	}
}

func TestBlurUniformIsIdentity(t *testing.T) {
	c := RGB{R: 200, G: 13, B: 77}
	for _, size := range [][2]int{{1, 1}, {2, 3}, {7, 7}, {19, 4}} {
		g := Filled(size[0], size[1], c)
		out := Blur(g, BlurRadius)
		for i, px := range out.Pix {
			if px != c {
				t.Fatalf("%dx%d: pixel %d changed to %v", size[0], size[1], i, px)
			}
		}
	}
}

func TestBlurExcludesOutOfBoundsNeighbours(t *testing.T) {
	// 5x1 row: 0, 0, 0, 0, 250. With radius 3 the left corner averages
	// columns 0..3 (sum 0) and the right corner averages columns 1..4
	// (sum 250, count 4).
	g := NewGrid(5, 1)
	g.Set(4, 0, RGB{R: 250, G: 250, B: 250})

	out := Blur(g, BlurRadius)
	if got := out.At(0, 0).R; got != 0 {
		t.Fatalf("expected left corner 0, got %d", got)
	}
	if got := out.At(4, 0).R; got != 62 {
		t.Fatalf("expected right corner 250/4=62, got %d", got)
	}
	if got := out.At(2, 0).R; got != 50 {
		t.Fatalf("expected centre 250/5=50, got %d", got)
	}
}

func TestBlurMatchesNaiveWindow(t *testing.T) {
	g := gradientGrid(11, 8)
	out := Blur(g, BlurRadius)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if want := naiveBlurAt(g, x, y, BlurRadius); out.At(x, y) != want {
				t.Fatalf("pixel (%d,%d): expected %v, got %v", x, y, want, out.At(x, y))
			}
		}
	}
}

func TestSplitHalvesWidths(t *testing.T) {
	for _, w := range []int{2, 3, 64, 65, 101} {
		left, right, err := SplitHalves(gradientGrid(w, 5))
		if err != nil {
			t.Fatalf("split width %d: %v", w, err)
		}
		if left.Width != w/2 {
			t.Fatalf("width %d: expected left %d, got %d", w, w/2, left.Width)
		}
		if left.Width+right.Width != w {
			t.Fatalf("width %d: halves sum to %d", w, left.Width+right.Width)
		}
	}

	_, _, err := SplitHalves(gradientGrid(1, 5))
	assertFault(t, err, domain.FaultValidation)
}

func TestComposeDimensionsAndBackground(t *testing.T) {
	red := RGB{R: 255}
	blue := RGB{B: 255}
	left := Filled(3, 2, red)
	right := Filled(4, 5, blue)

	out := Compose(left, right)
	if out.Width != 7 || out.Height != 5 {
		t.Fatalf("expected 7x5, got %dx%d", out.Width, out.Height)
	}
	if out.At(0, 0) != red || out.At(2, 1) != red {
		t.Fatal("expected left grid at origin")
	}
	if out.At(3, 0) != blue || out.At(6, 4) != blue {
		t.Fatal("expected right grid at (leftWidth, 0)")
	}
	if out.At(0, 2) != (RGB{}) || out.At(2, 4) != (RGB{}) {
		t.Fatal("expected rows below the shorter grid to stay black")
	}
}

func TestSplitComposeRoundTrip(t *testing.T) {
	g := gradientGrid(13, 6)
	left, right, err := SplitHalves(g)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	out := Compose(left, right)
	for i := range g.Pix {
		if out.Pix[i] != g.Pix[i] {
			t.Fatalf("pixel %d changed after split and compose", i)
		}
	}
}

func TestFromImageDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	g := FromImage(img)
	if g.At(0, 0) != (RGB{R: 10, G: 20, B: 30}) {
		t.Fatalf("expected colour channels kept, got %v", g.At(0, 0))
	}
	if g.ToImage().NRGBAAt(0, 0).A != 0xff {
		t.Fatal("expected rendered grid to be opaque")
	}
}

func naiveBlurAt(g PixelGrid, x, y, radius int) RGB {
	var r, gr, b, count int
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			nx, ny := x+dx, y+dy
			if nx >= 0 && nx < g.Width && ny >= 0 && ny < g.Height {
				px := g.At(nx, ny)
				r += int(px.R)
				gr += int(px.G)
				b += int(px.B)
				count++
			}
		}
	}
	return RGB{R: uint8(r / count), G: uint8(gr / count), B: uint8(b / count)}
}
