package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/pocketlm/internal/runtime"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps a start failure to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, runtime.ErrBusy):
		return http.StatusConflict, "busy_error"
	case errors.Is(err, runtime.ErrNotReady), errors.Is(err, runtime.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// errorCode names the runtime kind of err, if it has one.
func errorCode(err error) string {
	switch runtime.KindOf(err) {
	case runtime.ErrNotReady:
		return "not_ready"
	case runtime.ErrBusy:
		return "busy"
	case runtime.ErrClosed:
		return "closed"
	case runtime.ErrArtifactMissing:
		return "artifact_missing"
	case runtime.ErrArtifactInvalid:
		return "artifact_invalid"
	case runtime.ErrAcceleratorInit:
		return "accelerator_init"
	case runtime.ErrDecodeStep:
		return "decode_step"
	case runtime.ErrResourceFatal:
		return "resource_fatal"
	default:
		return ""
	}
}
