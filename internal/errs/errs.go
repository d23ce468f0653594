// Package errs defines sentinel errors shared between packages.
package errs

import "errors"

var (
	ErrInvalidChannel = errors.New("invalid channel")
	ErrNotFound       = errors.New("not found")
	ErrFrameTooLong   = errors.New("frame too long")
	ErrDeviceRead     = errors.New("device read failed")
)
