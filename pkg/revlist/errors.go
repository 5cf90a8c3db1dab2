package revlist

import (
	"errors"
	"fmt"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/repo"
	"github.com/odvcencio/revlist/pkg/revparse"
	"github.com/odvcencio/revlist/pkg/revwalk"
)

// Actions name the step a run was performing when it failed.
const (
	ActionOpenRepository = "opening repository"
	ActionAllocateWalk   = "allocating revwalk"
	ActionParseOptions   = "parsing options"
	ActionWalk           = "walking revisions"
	ActionWriteOutput    = "writing output"
)

// Kind classifies a failed run.
type Kind int

const (
	// KindResolution: a specifier names nothing, is ambiguous or is
	// malformed.
	KindResolution Kind = iota + 1
	// KindUnsupportedSpec: a specifier uses syntax that is refused, such as
	// a symmetric "A...B" range.
	KindUnsupportedSpec
	// KindTraversal: the walk itself failed, while being configured or
	// drained.
	KindTraversal
	// KindInitialization: the repository or the walker could not be set up.
	KindInitialization
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindUnsupportedSpec:
		return "unsupported spec"
	case KindTraversal:
		return "traversal"
	case KindInitialization:
		return "initialization"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Numeric error codes, as reported on the command line.
const (
	CodeGeneric     = 1
	CodeNotFound    = 3
	CodeAmbiguous   = 5
	CodeInvalidSpec = 12
)

// Error is the single error type a run returns.
type Error struct {
	Kind   Kind
	Action string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Action + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Code maps the underlying cause to a numeric code.
func (e *Error) Code() int {
	switch {
	case errors.Is(e.Err, revparse.ErrUnsupportedSpec), errors.Is(e.Err, revparse.ErrInvalidSpec):
		return CodeInvalidSpec
	case errors.Is(e.Err, object.ErrAmbiguous):
		return CodeAmbiguous
	case errors.Is(e.Err, object.ErrNotFound),
		errors.Is(e.Err, repo.ErrRefNotFound),
		errors.Is(e.Err, repo.ErrNotRepository),
		errors.Is(e.Err, revwalk.ErrNotCommit):
		return CodeNotFound
	default:
		return CodeGeneric
	}
}

// configureError classifies a failure of Configure. The walk refusing a
// non-commit is a resolution failure; anything else it reports is a
// traversal failure.
func configureError(err error) *Error {
	var we *walkError
	if errors.As(err, &we) {
		err = we.err
		if !errors.Is(err, revwalk.ErrNotCommit) {
			return &Error{Kind: KindTraversal, Action: ActionParseOptions, Err: err}
		}
	}
	return resolutionError(err)
}

// resolutionError classifies a failure while the options were scanned.
func resolutionError(err error) *Error {
	kind := KindResolution
	if errors.Is(err, revparse.ErrUnsupportedSpec) {
		kind = KindUnsupportedSpec
	}
	return &Error{Kind: kind, Action: ActionParseOptions, Err: err}
}
