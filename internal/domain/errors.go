package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("invalid request")
	ErrInsufficientData = errors.New("insufficient data in range")
	ErrEncoding         = errors.New("encoding failed")
)

// ErrorKind returns the stable category string persisted with a failed job
// and surfaced to clients. Unrecognized errors map to the generic category.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	default:
		return "internal"
	}
}
