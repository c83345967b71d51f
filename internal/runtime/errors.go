package runtime

import (
	"errors"
	"fmt"
)

// Error kinds. KindOf maps every error returned by this package, and by
// generation on its behalf, to exactly one of these. errors.Is can match more
// than one when the error wraps an earlier failure, as Acquire does with the
// load error that left the runtime Failed.
var (
	ErrNotReady         = errors.New("runtime: not ready")
	ErrBusy             = errors.New("runtime: busy")
	ErrClosed           = errors.New("runtime: closed")
	ErrArtifactMissing  = errors.New("runtime: artifact missing")
	ErrArtifactInvalid  = errors.New("runtime: artifact invalid")
	ErrAcceleratorInit  = errors.New("runtime: accelerator init failed")
	ErrDecodeStep       = errors.New("runtime: decode step failed")
	ErrResourceFatal    = errors.New("runtime: resource unusable")
	errNoEngineFactory  = errors.New("no engine factory")
	errInvalidVocabSize = errors.New("vocabulary size out of range")
)

// Error carries the operation, the kind and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, so a
// wrapped cause never overrides it. Plain errors fall back to the first
// sentinel they match, or nil.
func KindOf(err error) error {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	for _, k := range []error{ErrNotReady, ErrBusy, ErrClosed, ErrArtifactMissing, ErrArtifactInvalid, ErrAcceleratorInit, ErrDecodeStep, ErrResourceFatal} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
