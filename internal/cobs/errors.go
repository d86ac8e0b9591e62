package cobs

import "errors"

var (
	// ErrZeroCode is returned when a zero code byte is encountered where a
	// run length was expected.
	ErrZeroCode = errors.New("cobs: unexpected zero code byte")
	// ErrTruncated is returned when a run length extends past the end of
	// the input.
	ErrTruncated = errors.New("cobs: truncated block")
)
