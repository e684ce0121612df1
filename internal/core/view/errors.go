package view

import "errors"

var (
	// ErrOutOfMemory is surfaced when the arena cannot satisfy an
	// allocation a container operation needs. It is never swallowed:
	// callers treat it as fatal for the operation in progress.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrValueSize reports a raw value whose byte length does not match
	// the element type's size.
	ErrValueSize = errors.New("value size mismatch")
)
