package domain

import (
	"errors"
	"math"
	"testing"
)

func TestJobDescriptorValidate(t *testing.T) {
	zoom := 2.0
	valid := JobDescriptor{
		UploadID:   "upload-1",
		Payload:    []byte{0x42, 0x4d, 0, 0},
		ZoomFactor: &zoom,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid descriptor, got error: %v", err)
	}

	if err := (JobDescriptor{}).Validate(); err == nil {
		t.Fatal("expected validation error for empty descriptor")
	}

	noParams := JobDescriptor{UploadID: "upload-1", Payload: []byte{1}}
	if err := noParams.Validate(); err == nil {
		t.Fatal("expected validation error when no mode parameters are present")
	}

	both := valid
	both.Region = &Region{W: 1, H: 1}
	if _, err := both.Mode(); err == nil {
		t.Fatal("expected mode error when both zoom and region are present")
	}

	negative := -1.0
	badZoom := valid
	badZoom.ZoomFactor = &negative
	err := badZoom.Validate()
	var fault *Fault
	if !errors.As(err, &fault) || fault.Kind != FaultValidation {
		t.Fatalf("expected validation fault for negative zoom, got %v", err)
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		badZoom.ZoomFactor = &bad
		if err := badZoom.Validate(); KindOf(err) != FaultValidation || err == nil {
			t.Fatalf("expected validation fault for zoom %v, got %v", bad, err)
		}
	}

	crop := JobDescriptor{UploadID: "upload-1", Payload: []byte{1}, Region: &Region{X: 1, Y: 1, W: 0, H: 5}}
	if err := crop.Validate(); err == nil {
		t.Fatal("expected validation error for zero-width crop")
	}
	crop.Region.W = 5
	if mode, err := crop.Mode(); err != nil || mode != ModeCropThenBlur {
		t.Fatalf("expected crop_then_blur mode, got %s err=%v", mode, err)
	}
}

func TestProcessingResultVariants(t *testing.T) {
	ok := Success("upload-1", []byte{1, 2, 3})
	if !ok.IsSuccess() || ok.Err() != nil || ok.Valid() != nil {
		t.Fatalf("expected valid success result, got %+v", ok)
	}

	failed := FailureFrom("upload-1", TransportFault("dial scale worker", errors.New("connection refused")))
	if failed.IsSuccess() {
		t.Fatal("expected failure result")
	}
	if failed.Fault != FaultTransport {
		t.Fatalf("expected transport fault kind, got %q", failed.Fault)
	}
	if failed.UploadID != "upload-1" {
		t.Fatalf("expected upload id to propagate, got %q", failed.UploadID)
	}
	if KindOf(failed.Err()) != FaultTransport {
		t.Fatalf("expected Err() to keep fault kind, got %v", failed.Err())
	}
	if err := failed.Valid(); err != nil {
		t.Fatalf("expected valid failure result, got %v", err)
	}

	if err := (ProcessingResult{Status: ResultStatusSuccess, UploadID: "x"}).Valid(); err == nil {
		t.Fatal("expected success without image to be invalid")
	}
}
