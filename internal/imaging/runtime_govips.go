//go:build govips && cgo

package imaging

import (
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   64 * 1024 * 1024,
			MaxCacheSize:  50,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func NewResampler() Resampler {
	return vipsCubic{fallback: CatmullRom{}}
}

// vipsCubic resizes through libvips with the cubic kernel. libvips may land one
// pixel off the requested size, in which case the fallback corrects it.
type vipsCubic struct {
	fallback Resampler
}

func (v vipsCubic) Resample(g PixelGrid, width, height int) (PixelGrid, error) {
	source, err := Encode(g, FormatPNG)
	if err != nil {
		return PixelGrid{}, err
	}

	img, err := vips.NewImageFromBuffer(source)
	if err != nil {
		return PixelGrid{}, fmt.Errorf("load grid into vips: %w", err)
	}
	defer img.Close()

	hscale := float64(width) / float64(g.Width)
	vscale := float64(height) / float64(g.Height)
	if err := img.ResizeWithVScale(hscale, vscale, vips.KernelCubic); err != nil {
		return PixelGrid{}, fmt.Errorf("vips resize: %w", err)
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return PixelGrid{}, fmt.Errorf("vips export: %w", err)
	}
	out, err := Decode(data, FormatPNG)
	if err != nil {
		return PixelGrid{}, err
	}
	if out.Width != width || out.Height != height {
		return v.fallback.Resample(out, width, height)
	}
	return out, nil
}
