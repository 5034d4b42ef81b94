package domain

import (
	"math"
	"strings"
)

type Mode string

const (
	ModeSplitScale   Mode = "split_scale"
	ModeCropThenBlur Mode = "crop_then_blur"

	JobStatusSucceeded = "succeeded"
	JobStatusPartial   = "partial"
	JobStatusFailed    = "failed"
)

type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// JobDescriptor is one inbound job. Exactly one of ZoomFactor and Region is set.
type JobDescriptor struct {
	UploadID   string
	Payload    []byte
	Format     string
	ZoomFactor *float64
	Region     *Region
}

// Mode reports which orchestration mode the parameters select.
func (j JobDescriptor) Mode() (Mode, error) {
	switch {
	case j.ZoomFactor != nil && j.Region == nil:
		return ModeSplitScale, nil
	case j.Region != nil && j.ZoomFactor == nil:
		return ModeCropThenBlur, nil
	case j.ZoomFactor != nil && j.Region != nil:
		return "", ValidationFault("job must carry either zoomFactor or a region, not both")
	default:
		return "", ValidationFault("job must carry zoomFactor or a region")
	}
}

func (j JobDescriptor) Validate() error {
	if strings.TrimSpace(j.UploadID) == "" {
		return ValidationFault("uploadId is required")
	}
	if len(j.Payload) == 0 {
		return ValidationFault("empty image received")
	}
	mode, err := j.Mode()
	if err != nil {
		return err
	}
	if mode == ModeSplitScale && !PositiveFinite(*j.ZoomFactor) {
		return ValidationFault("zoom factor must be positive (received: %g)", *j.ZoomFactor)
	}
	if mode == ModeCropThenBlur && (j.Region.W <= 0 || j.Region.H <= 0) {
		return ValidationFault("crop size must be positive (received: %dx%d)", j.Region.W, j.Region.H)
	}
	return nil
}

// PositiveFinite reports whether f is a usable zoom factor.
func PositiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
