//go:build !govips || !cgo

package imaging

func Startup() error {
	return nil
}

func Shutdown() {}

// NewResampler returns the resampler compiled into this build.
func NewResampler() Resampler {
	return CatmullRom{}
}
