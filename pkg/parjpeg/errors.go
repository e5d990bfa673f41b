package parjpeg

import "errors"

var (
	// ErrInvalidParameters indicates malformed image or encoder parameters.
	// Detected before any device memory is sized or allocated; the caller
	// may retry with corrected input.
	ErrInvalidParameters = errors.New("parjpeg: invalid parameters")

	// ErrAllocationFailure indicates host or device memory exhaustion during
	// encoder construction. Construction is all-or-nothing: nothing leaks.
	ErrAllocationFailure = errors.New("parjpeg: allocation failure")

	// ErrEncodeFailed indicates a pipeline stage failed during Encode. The
	// encoder remains closeable but must not be reused.
	ErrEncodeFailed = errors.New("parjpeg: encode failed")

	// ErrEncoderClosed is returned when using an encoder after Close.
	ErrEncoderClosed = errors.New("parjpeg: encoder closed")
)
