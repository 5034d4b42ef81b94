package domain

import (
	"errors"
	"fmt"
)

type FaultKind string

const (
	FaultValidation FaultKind = "validation"
	FaultCodec      FaultKind = "codec"
	FaultTransport  FaultKind = "transport"
)

// Fault is a classified job error. Every fault ends up as a Failure result.
type Fault struct {
	Kind FaultKind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return f.Msg + ": " + f.Err.Error()
	}
	return f.Msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func ValidationFault(format string, args ...any) error {
	return &Fault{Kind: FaultValidation, Msg: fmt.Sprintf(format, args...)}
}

func CodecFault(msg string, err error) error {
	return &Fault{Kind: FaultCodec, Msg: msg, Err: err}
}

func TransportFault(msg string, err error) error {
	return &Fault{Kind: FaultTransport, Msg: msg, Err: err}
}

// KindOf returns the fault kind of err. Unclassified errors count as codec faults
// since they come out of local image work.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultCodec
}
