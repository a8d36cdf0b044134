package waterfall

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrInvalidRequest marks a request rejected before any provider call:
// unknown contact, missing identifiers or unknown field names.
var ErrInvalidRequest = eris.New("waterfall: invalid request")

// RequestError wraps the cause of a rejected request. errors.Is matches
// both ErrInvalidRequest and the cause.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return ErrInvalidRequest.Error()
	}
	return ErrInvalidRequest.Error() + ": " + e.Err.Error()
}

// Is reports ErrInvalidRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRequestError reports whether err rejects the request itself.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
