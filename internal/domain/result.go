package domain

import "errors"

const (
	ResultStatusSuccess = "success"
	ResultStatusError   = "error"
)

// ProcessingResult is the single result shape shared by every transform call and
// every aggregation step. Status selects the populated variant.
type ProcessingResult struct {
	Status       string    `json:"status"`
	UploadID     string    `json:"upload_id"`
	Image        []byte    `json:"image,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Fault        FaultKind `json:"fault,omitempty"`
}

func Success(uploadID string, image []byte) ProcessingResult {
	return ProcessingResult{
		Status:   ResultStatusSuccess,
		UploadID: uploadID,
		Image:    image,
	}
}

func Failure(uploadID string, kind FaultKind, message string) ProcessingResult {
	if message == "" {
		message = "unknown error"
	}
	return ProcessingResult{
		Status:       ResultStatusError,
		UploadID:     uploadID,
		ErrorMessage: message,
		Fault:        kind,
	}
}

// FailureFrom classifies err and wraps it as a Failure.
func FailureFrom(uploadID string, err error) ProcessingResult {
	return Failure(uploadID, KindOf(err), err.Error())
}

func (r ProcessingResult) IsSuccess() bool {
	return r.Status == ResultStatusSuccess
}

// Err returns nil for a success and the failure as a Fault otherwise.
func (r ProcessingResult) Err() error {
	if r.IsSuccess() {
		return nil
	}
	kind := r.Fault
	if kind == "" {
		kind = FaultCodec
	}
	return &Fault{Kind: kind, Msg: r.ErrorMessage}
}

// Valid reports whether exactly one variant is populated.
func (r ProcessingResult) Valid() error {
	switch r.Status {
	case ResultStatusSuccess:
		if len(r.Image) == 0 || r.ErrorMessage != "" {
			return errors.New("success result must carry image bytes only")
		}
	case ResultStatusError:
		if r.ErrorMessage == "" || len(r.Image) != 0 {
			return errors.New("error result must carry an error message only")
		}
	default:
		return errors.New("result status must be success or error")
	}
	if r.UploadID == "" {
		return errors.New("result upload_id is required")
	}
	return nil
}
