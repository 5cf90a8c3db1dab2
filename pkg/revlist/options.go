// Package revlist turns a rev-list style command line into a configured
// commit walk and prints the walk's commit ids.
package revlist

import (
	"fmt"
	"strings"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/revparse"
	"github.com/odvcencio/revlist/pkg/revwalk"
)

// Resolver turns specifiers into object ids. *revparse.Resolver implements
// it.
type Resolver interface {
	ResolveSingle(spec string) (object.Hash, error)
	ResolveRange(spec string) (revparse.Range, error)
}

// Walk is the part of the traversal engine the options configure.
// *revwalk.Walker implements it.
type Walk interface {
	Sorting(revwalk.Sorting) error
	Push(object.Hash) error
	Hide(object.Hash) error
}

// Flags recognized on the command line. Every other token is a specifier.
const (
	FlagTopoOrder = "--topo-order"
	FlagDateOrder = "--date-order"
	FlagReverse   = "--reverse"
	FlagNot       = "--not"
)

// Options is the running state of one scan over the command line.
type Options struct {
	// Hide is the polarity plain specifiers get. --not flips it.
	Hide    bool
	Sorting revwalk.Sorting
}

// Configure applies args to walk from left to right and returns the state
// left after the last token. Sort flags reach the walk as soon as they are
// seen. The first failure stops the scan; it is returned as an *Error.
func Configure(res Resolver, walk Walk, args []string) (Options, error) {
	var opts Options
	for _, arg := range args {
		if err := opts.apply(res, walk, arg); err != nil {
			return opts, configureError(err)
		}
	}
	return opts, nil
}

func (o *Options) apply(res Resolver, walk Walk, arg string) error {
	switch arg {
	case FlagTopoOrder:
		o.Sorting.Order = revwalk.OrderTopological
		return walkFailed(walk.Sorting(o.Sorting))
	case FlagDateOrder:
		o.Sorting.Order = revwalk.OrderTime
		return walkFailed(walk.Sorting(o.Sorting))
	case FlagReverse:
		o.Sorting.Reverse = !o.Sorting.Reverse
		return walkFailed(walk.Sorting(o.Sorting))
	case FlagNot:
		o.Hide = !o.Hide
		return nil
	}

	// Any token with three dots is refused, including "^A...B" and
	// "A..B...C", before the resolver sees it.
	if strings.Contains(arg, "...") {
		return symmetricRangeError(arg)
	}
	// "^A..B" is a hidden single specifier, so the caret is checked first.
	if spec, ok := strings.CutPrefix(arg, "^"); ok {
		return pushSpec(res, walk, spec, !o.Hide)
	}
	if strings.Contains(arg, "..") {
		return pushRange(res, walk, arg, o.Hide)
	}
	return pushSpec(res, walk, arg, o.Hide)
}

func pushSpec(res Resolver, walk Walk, spec string, hide bool) error {
	h, err := res.ResolveSingle(spec)
	if err != nil {
		return err
	}
	return pushCommit(walk, h, hide)
}

// pushRange hides the left side and shows the right one. Under --not both
// are inverted.
func pushRange(res Resolver, walk Walk, spec string, hide bool) error {
	rng, err := res.ResolveRange(spec)
	if err != nil {
		return err
	}
	if rng.Symmetric {
		return symmetricRangeError(spec)
	}
	if err := pushCommit(walk, rng.Left, !hide); err != nil {
		return err
	}
	return pushCommit(walk, rng.Right, hide)
}

func pushCommit(walk Walk, h object.Hash, hide bool) error {
	if hide {
		return walkFailed(walk.Hide(h))
	}
	return walkFailed(walk.Push(h))
}

func symmetricRangeError(spec string) error {
	return &revparse.SpecError{Spec: spec, Err: fmt.Errorf("%w: symmetric difference ranges", revparse.ErrUnsupportedSpec)}
}

// walkError marks a failure reported by the walk rather than the resolver.
type walkError struct{ err error }

func (e *walkError) Error() string { return e.err.Error() }
func (e *walkError) Unwrap() error { return e.err }

func walkFailed(err error) error {
	if err == nil {
		return nil
	}
	return &walkError{err: err}
}
