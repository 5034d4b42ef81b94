package transform

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/imaging"
)

// ScaleWorker resamples a whole segment by a zoom factor.
type ScaleWorker struct {
	logger    *log.Logger
	resampler imaging.Resampler
}

func NewScaleWorker(logger *log.Logger, resampler imaging.Resampler) *ScaleWorker {
	if resampler == nil {
		resampler = imaging.CatmullRom{}
	}
	return &ScaleWorker{logger: logger, resampler: resampler}
}

func (w *ScaleWorker) ProcessIt(ctx context.Context, req domain.ScaleRequest) (result domain.ProcessingResult) {
	defer recoverInto(w.logger, domain.ServiceScale, req.UploadID, &result)

	w.logger.Printf("scale start upload_id=%s bytes=%d format=%s zoom=%g", req.UploadID, len(req.Image), req.Format, req.ZoomFactor)
	if len(req.Image) == 0 {
		return domain.Failure(req.UploadID, domain.FaultValidation, "empty image received")
	}
	if !domain.PositiveFinite(req.ZoomFactor) {
		return domain.Failure(req.UploadID, domain.FaultValidation, fmt.Sprintf("zoom factor must be positive (received: %g)", req.ZoomFactor))
	}
	if err := ctx.Err(); err != nil {
		return domain.FailureFrom(req.UploadID, domain.TransportFault("scale cancelled", err))
	}

	format, segment, err := decodeRequest(req.Image, req.Format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}
	zoomed, err := imaging.Zoom(w.resampler, segment, req.ZoomFactor)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}
	out, err := imaging.Encode(zoomed, format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}

	w.logger.Printf("scale done upload_id=%s before=%dx%d after=%dx%d bytes=%d",
		req.UploadID, segment.Width, segment.Height, zoomed.Width, zoomed.Height, len(out))
	return domain.Success(req.UploadID, out)
}

type CropWorker struct {
	logger *log.Logger
}

func NewCropWorker(logger *log.Logger) *CropWorker {
	return &CropWorker{logger: logger}
}

func (w *CropWorker) ProcessIt(ctx context.Context, req domain.CropRequest) (result domain.ProcessingResult) {
	defer recoverInto(w.logger, domain.ServiceCrop, req.UploadID, &result)

	r := req.Region
	w.logger.Printf("crop start upload_id=%s bytes=%d format=%s region=%d,%d,%dx%d", req.UploadID, len(req.Image), req.Format, r.X, r.Y, r.W, r.H)
	if len(req.Image) == 0 {
		return domain.Failure(req.UploadID, domain.FaultValidation, "empty image received")
	}
	if err := ctx.Err(); err != nil {
		return domain.FailureFrom(req.UploadID, domain.TransportFault("crop cancelled", err))
	}

	format, source, err := decodeRequest(req.Image, req.Format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}
	cropped, err := imaging.Crop(source, r)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}
	out, err := imaging.Encode(cropped, format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}

	w.logger.Printf("crop done upload_id=%s size=%dx%d bytes=%d", req.UploadID, cropped.Width, cropped.Height, len(out))
	return domain.Success(req.UploadID, out)
}

type BlurWorker struct {
	logger *log.Logger
	radius int
}

func NewBlurWorker(logger *log.Logger) *BlurWorker {
	return &BlurWorker{logger: logger, radius: imaging.BlurRadius}
}

func (w *BlurWorker) ProcessIt(ctx context.Context, req domain.BlurRequest) (result domain.ProcessingResult) {
	defer recoverInto(w.logger, domain.ServiceBlur, req.UploadID, &result)

	w.logger.Printf("blur start upload_id=%s bytes=%d format=%s", req.UploadID, len(req.Image), req.Format)
	if len(req.Image) == 0 {
		return domain.Failure(req.UploadID, domain.FaultValidation, "empty image received")
	}
	if err := ctx.Err(); err != nil {
		return domain.FailureFrom(req.UploadID, domain.TransportFault("blur cancelled", err))
	}

	format, source, err := decodeRequest(req.Image, req.Format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}
	started := time.Now()
	blurred := imaging.Blur(source, w.radius)
	out, err := imaging.Encode(blurred, format)
	if err != nil {
		return domain.FailureFrom(req.UploadID, err)
	}

	w.logger.Printf("blur done upload_id=%s size=%dx%d radius=%d took=%s", req.UploadID, blurred.Width, blurred.Height, w.radius, time.Since(started))
	return domain.Success(req.UploadID, out)
}

// decodeRequest falls back to signature detection when the caller sent no format.
func decodeRequest(data []byte, declared string) (string, imaging.PixelGrid, error) {
	format, err := imaging.ResolveFormat(declared, data)
	if err != nil {
		return "", imaging.PixelGrid{}, err
	}
	grid, err := imaging.Decode(data, format)
	if err != nil {
		return "", imaging.PixelGrid{}, err
	}
	return format, grid, nil
}

func recoverInto(logger *log.Logger, service, uploadID string, result *domain.ProcessingResult) {
	if r := recover(); r != nil {
		logger.Printf("%s panic upload_id=%s err=%v", service, uploadID, r)
		*result = domain.Failure(uploadID, domain.FaultCodec, fmt.Sprintf("%s failed: %v", service, r))
	}
}
