package codec

import (
	"errors"
	"fmt"
)

// ErrNoReference is returned when a residual operation runs without a
// reference frame (before the first keyframe, or after Reset).
var ErrNoReference = errors.New("no reference frame")

// ErrOverflow is returned when quantization produces a symbol outside
// the int16 range; the frame cannot be encoded with these parameters.
var ErrOverflow = errors.New("quantizer overflow")

// DimensionMismatchError reports a frame whose dimensions disagree with
// the current reference.
type DimensionMismatchError struct {
	WantWidth, WantHeight uint32
	GotWidth, GotHeight   uint32
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("frame dimensions %dx%d do not match reference %dx%d",
		e.GotWidth, e.GotHeight, e.WantWidth, e.WantHeight)
}

// HeaderMismatchError reports a decoded symbol stream whose embedded
// header disagrees with the expected geometry.
type HeaderMismatchError struct {
	WantWidth, WantHeight uint32
	GotWidth, GotHeight   uint32
	GotBits               int
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("codec header %dx%d/%d-bit does not match expected %dx%d",
		e.GotWidth, e.GotHeight, e.GotBits, e.WantWidth, e.WantHeight)
}

// CodecFailureError wraps an internal symbol codec failure.
type CodecFailureError struct {
	Op  string
	Err error
}

func (e *CodecFailureError) Error() string {
	return fmt.Sprintf("symbol codec %s failed: %v", e.Op, e.Err)
}

func (e *CodecFailureError) Unwrap() error { return e.Err }
