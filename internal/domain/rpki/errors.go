package rpki

import "errors"

var (
	ErrMalformedBatch = errors.New("malformed report batch")
	ErrTimeRequired   = errors.New("report Time is required")
	ErrInvalidTime    = errors.New("invalid report Time")

	ErrMalformedRecord = errors.New("malformed report record")
	ErrFieldRequired   = errors.New("field is required")
	ErrFieldType       = errors.New("field has wrong type")
)
