package revparse

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpec marks a specifier that does not follow the revision
	// grammar, such as an unterminated "@{" or a parent count that
	// overflows.
	ErrInvalidSpec = errors.New("invalid revision specifier")
	// ErrUnsupportedSpec marks well-formed syntax this resolver refuses,
	// including symmetric "A...B" ranges.
	ErrUnsupportedSpec = errors.New("unsupported revision specifier")
)

// SpecError reports the specifier that failed to resolve.
type SpecError struct {
	Spec string
	Err  error
}

func (e *SpecError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("revspec '%s': %v", e.Spec, e.Err)
}

func (e *SpecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func specErr(spec string, err error) error {
	var se *SpecError
	if errors.As(err, &se) {
		return err
	}
	return &SpecError{Spec: spec, Err: err}
}
