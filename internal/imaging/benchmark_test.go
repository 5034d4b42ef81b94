package imaging

import (
	"testing"

	"github.com/dunamismax/pixelsplit/internal/domain"
)

func BenchmarkZoomHalf(b *testing.B) {
	left, _, err := SplitHalves(gradientGrid(1920, 1080))
	if err != nil {
		b.Fatalf("split: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Zoom(CatmullRom{}, left, 1.5); err != nil {
			b.Fatalf("zoom: %v", err)
		}
	}
}

func BenchmarkBlur(b *testing.B) {
	grid := gradientGrid(640, 480)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Blur(grid, BlurRadius)
	}
}

func BenchmarkCropThenEncodeJPEG(b *testing.B) {
	grid := gradientGrid(1920, 1080)
	region := domain.Region{X: 100, Y: 100, W: 800, H: 600}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cropped, err := Crop(grid, region)
		if err != nil {
			b.Fatalf("crop: %v", err)
		}
		if _, err := Encode(cropped, FormatJPEG); err != nil {
			b.Fatalf("encode: %v", err)
		}
	}
}

func BenchmarkSplitCompose(b *testing.B) {
	grid := gradientGrid(1920, 1080)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		left, right, err := SplitHalves(grid)
		if err != nil {
			b.Fatalf("split: %v", err)
		}
		Compose(left, right)
	}
}
