package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"golang.org/x/image/bmp"
)

const (
	FormatBMP  = "bmp"
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"

	jpegQuality = 80
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// DetectFormat sniffs the leading signature bytes. It returns "" when the
// payload is shorter than four bytes or matches no supported codec.
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case data[0] == 0x42 && data[1] == 0x4d:
		return FormatBMP
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4e && data[3] == 0x47:
		return FormatPNG
	case data[0] == 0xff && data[1] == 0xd8:
		return FormatJPEG
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
		return FormatGIF
	default:
		return ""
	}
}

// NormalizeFormat lowercases and canonicalizes a declared format name.
// Unknown names are returned lowercased so callers can report them.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, ".")
	format = strings.TrimPrefix(format, "image/")
	switch format {
	case "jpg", "jpe":
		return FormatJPEG
	case "x-ms-bmp", "x-bmp":
		return FormatBMP
	default:
		return format
	}
}

func Supported(format string) bool {
	switch NormalizeFormat(format) {
	case FormatBMP, FormatPNG, FormatJPEG, FormatGIF:
		return true
	default:
		return false
	}
}

// ResolveFormat picks the job format: the declared one when present, otherwise
// whatever the payload signature says.
func ResolveFormat(declared string, data []byte) (string, error) {
	format := NormalizeFormat(declared)
	if format == "" {
		format = DetectFormat(data)
		if format == "" {
			return "", &domain.Fault{Kind: domain.FaultValidation, Msg: "image format could not be detected", Err: ErrUnsupportedFormat}
		}
	}
	if !Supported(format) {
		return "", &domain.Fault{Kind: domain.FaultValidation, Msg: fmt.Sprintf("format %q is not supported", format), Err: ErrUnsupportedFormat}
	}
	return format, nil
}

func decoderFor(format string) (func(io.Reader) (image.Image, error), error) {
	switch NormalizeFormat(format) {
	case FormatBMP:
		return bmp.Decode, nil
	case FormatPNG:
		return png.Decode, nil
	case FormatJPEG:
		return jpeg.Decode, nil
	case FormatGIF:
		return gif.Decode, nil
	default:
		return nil, &domain.Fault{Kind: domain.FaultValidation, Msg: fmt.Sprintf("format %q is not supported", format), Err: ErrUnsupportedFormat}
	}
}

// Decode parses data strictly as format.
func Decode(data []byte, format string) (PixelGrid, error) {
	if len(data) == 0 {
		return PixelGrid{}, domain.ValidationFault("empty image received")
	}
	decode, err := decoderFor(format)
	if err != nil {
		return PixelGrid{}, err
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return PixelGrid{}, domain.CodecFault("failed to read image as "+NormalizeFormat(format), err)
	}
	grid := FromImage(img)
	if grid.Empty() {
		return PixelGrid{}, domain.ValidationFault("image has no pixels")
	}
	return grid, nil
}

// Dimensions reads only the header of data.
func Dimensions(data []byte, format string) (int, int, error) {
	if len(data) == 0 {
		return 0, 0, domain.ValidationFault("empty image received")
	}
	var (
		cfg image.Config
		err error
	)
	r := bytes.NewReader(data)
	switch NormalizeFormat(format) {
	case FormatBMP:
		cfg, err = bmp.DecodeConfig(r)
	case FormatPNG:
		cfg, err = png.DecodeConfig(r)
	case FormatJPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case FormatGIF:
		cfg, err = gif.DecodeConfig(r)
	default:
		return 0, 0, &domain.Fault{Kind: domain.FaultValidation, Msg: fmt.Sprintf("format %q is not supported", format), Err: ErrUnsupportedFormat}
	}
	if err != nil {
		return 0, 0, domain.CodecFault("failed to read image header as "+NormalizeFormat(format), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, domain.ValidationFault("image has no pixels")
	}
	return cfg.Width, cfg.Height, nil
}

func Encode(g PixelGrid, format string) ([]byte, error) {
	if g.Empty() {
		return nil, domain.ValidationFault("cannot encode an empty %dx%d image", g.Width, g.Height)
	}

	var buf bytes.Buffer
	img := g.ToImage()

	var err error
	switch NormalizeFormat(format) {
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = encoder.Encode(&buf, img)
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case FormatGIF:
		err = gif.Encode(&buf, img, &gif.Options{NumColors: 256})
	default:
		return nil, &domain.Fault{Kind: domain.FaultValidation, Msg: fmt.Sprintf("format %q is not supported", format), Err: ErrUnsupportedFormat}
	}
	if err != nil {
		return nil, domain.CodecFault("failed to write image format "+NormalizeFormat(format), err)
	}
	return buf.Bytes(), nil
}
