// Package revparse resolves Git revision specifiers such as "main~2",
// "v1.0^{commit}", "HEAD@{1}" or "a1b2c3d" to object ids, and splits
// "A..B" ranges into their two sides.
package revparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/repo"
)

// Resolver maps specifiers to object ids against the current state of a
// repository. Nothing is cached between calls.
type Resolver struct {
	repo *repo.Repo
	log  *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Resolver for r.
func New(r *repo.Repo, opts ...Option) *Resolver {
	res := &Resolver{repo: r, log: zap.NewNop()}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Range is a resolved "left..right" specifier.
type Range struct {
	Left      object.Hash
	Right     object.Hash
	Symmetric bool
}

// ResolveSingle resolves a non-range specifier to exactly one object id.
//
// The base of the specifier is "@" or HEAD, a ref found through Git's
// lookup rules, or a full or abbreviated object id. A full id wins over a
// ref of the same name and a ref wins over an abbreviated id. The base may
// be followed by one "@{n}" reflog selector and then any chain of "~n",
// "^n" and "^{type}" operators.
func (r *Resolver) ResolveSingle(spec string) (object.Hash, error) {
	h, err := r.resolve(spec)
	if err != nil {
		return "", specErr(spec, err)
	}
	r.log.Debug("resolved revision", zap.String("spec", spec), zap.String("id", string(h)))
	return h, nil
}

// ResolveRange resolves a "left..right" specifier. An empty side stands for
// HEAD. Symmetric "left...right" ranges are rejected with
// ErrUnsupportedSpec before either side is resolved.
func (r *Resolver) ResolveRange(spec string) (Range, error) {
	left, right, symmetric, err := SplitRange(spec)
	if err != nil {
		return Range{}, specErr(spec, err)
	}
	if symmetric {
		return Range{Symmetric: true}, specErr(spec, fmt.Errorf("%w: symmetric difference ranges", ErrUnsupportedSpec))
	}

	lh, err := r.ResolveSingle(left)
	if err != nil {
		return Range{}, err
	}
	rh, err := r.ResolveSingle(right)
	if err != nil {
		return Range{}, err
	}
	return Range{Left: lh, Right: rh}, nil
}

// SplitRange splits spec around its first "..". A third dot directly after
// it marks the symmetric form. Empty sides become "HEAD".
func SplitRange(spec string) (left, right string, symmetric bool, err error) {
	left, right, ok := strings.Cut(spec, "..")
	if !ok {
		return "", "", false, fmt.Errorf("%w: not a range", ErrInvalidSpec)
	}
	if rest, ok := strings.CutPrefix(right, "."); ok {
		symmetric = true
		right = rest
	}
	if left == "" {
		left = "HEAD"
	}
	if right == "" {
		right = "HEAD"
	}
	return left, right, symmetric, nil
}

func (r *Resolver) resolve(spec string) (object.Hash, error) {
	if spec == "" {
		return "", fmt.Errorf("%w: empty specifier", ErrInvalidSpec)
	}
	if strings.Contains(spec, "..") {
		return "", fmt.Errorf("%w: range where a single revision is expected", ErrInvalidSpec)
	}
	if strings.ContainsRune(spec, ':') {
		return "", fmt.Errorf("%w: path lookups", ErrUnsupportedSpec)
	}

	base, rest := splitBase(spec)

	var (
		h   object.Hash
		err error
	)
	if sel, ok := strings.CutPrefix(rest, "@{"); ok {
		end := strings.IndexByte(sel, '}')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated @{", ErrInvalidSpec)
		}
		h, err = r.resolveReflog(base, sel[:end])
		rest = sel[end+1:]
	} else {
		h, err = r.resolveBase(base)
	}
	if err != nil {
		return "", err
	}

	for rest != "" {
		switch {
		case rest[0] == '~':
			n, width, err := parseCount(rest[1:])
			if err != nil {
				return "", err
			}
			rest = rest[1+width:]
			if h, err = r.ancestor(h, n); err != nil {
				return "", err
			}
		case strings.HasPrefix(rest, "^{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated ^{", ErrInvalidSpec)
			}
			kind := rest[2:end]
			rest = rest[end+1:]
			if h, err = r.peel(h, kind); err != nil {
				return "", err
			}
		case rest[0] == '^':
			n, width, err := parseCount(rest[1:])
			if err != nil {
				return "", err
			}
			rest = rest[1+width:]
			if h, err = r.parent(h, n); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("%w: unexpected %q", ErrInvalidSpec, rest)
		}
	}
	return h, nil
}

// splitBase separates the name part of spec from its operators.
func splitBase(spec string) (base, rest string) {
	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case '~', '^':
			return spec[:i], spec[i:]
		case '@':
			if i+1 < len(spec) && spec[i+1] == '{' {
				return spec[:i], spec[i:]
			}
		}
	}
	return spec, ""
}

// parseCount reads the optional decimal count after "~" or "^". A missing
// count means 1.
func parseCount(s string) (n, width int, err error) {
	for width < len(s) && s[width] >= '0' && s[width] <= '9' {
		width++
	}
	if width == 0 {
		return 1, 0, nil
	}
	n, err = strconv.Atoi(s[:width])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: count %q", ErrInvalidSpec, s[:width])
	}
	return n, width, nil
}

func (r *Resolver) resolveBase(base string) (object.Hash, error) {
	switch base {
	case "":
		return "", fmt.Errorf("%w: missing revision before operator", ErrInvalidSpec)
	case "@":
		base = "HEAD"
	}

	store := r.repo.Store
	if len(base) == object.HashHexSize && object.IsHexPrefix(base) {
		if h, err := store.ResolvePrefix(base); err == nil {
			return h, nil
		}
	}

	_, h, err := r.repo.DWIMRef(base)
	if err == nil {
		if !store.Has(h) {
			return "", fmt.Errorf("ref %q points at %s: %w", base, h, object.ErrNotFound)
		}
		return h, nil
	}
	if !errors.Is(err, repo.ErrRefNotFound) {
		return "", err
	}

	if object.IsHexPrefix(base) {
		h, err := store.ResolvePrefix(base)
		if err != nil {
			if errors.Is(err, object.ErrAmbiguous) {
				return "", fmt.Errorf("short id %q: %w", base, object.ErrAmbiguous)
			}
			return "", fmt.Errorf("no ref or object named %q: %w", base, object.ErrNotFound)
		}
		return h, nil
	}
	return "", fmt.Errorf("no ref or object named %q: %w", base, object.ErrNotFound)
}

// resolveReflog resolves "<base>@{<sel>}". Only numeric selectors are
// supported: @{0} is the current value and @{n} the value n updates ago.
// An empty base means the branch HEAD points at.
func (r *Resolver) resolveReflog(base, sel string) (object.Hash, error) {
	if sel == "" {
		return "", fmt.Errorf("%w: empty @{}", ErrInvalidSpec)
	}
	n, err := strconv.Atoi(sel)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: @{%s}", ErrUnsupportedSpec, sel)
	}

	refName := "HEAD"
	switch base {
	case "":
		head, err := r.repo.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			refName = head
		}
	case "@", "HEAD":
	default:
		full, _, err := r.repo.DWIMRef(base)
		if err != nil {
			if errors.Is(err, repo.ErrRefNotFound) {
				return "", fmt.Errorf("no ref named %q: %w", base, object.ErrNotFound)
			}
			return "", err
		}
		refName = full
	}

	entries, err := r.repo.ReadReflog(refName, n+1)
	if err != nil {
		return "", err
	}
	if n < len(entries) {
		return entries[n].NewHash, nil
	}
	if n == 0 {
		// No log yet: the current value is still @{0}.
		h, err := r.repo.ResolveRef(refName)
		if err != nil {
			return "", fmt.Errorf("%s: %w", refName, object.ErrNotFound)
		}
		return h, nil
	}
	return "", fmt.Errorf("log for %s has only %d entries: %w", refName, len(entries), object.ErrNotFound)
}

func (r *Resolver) commit(h object.Hash) (object.Hash, *object.CommitObj, error) {
	peeled, err := r.repo.Store.Peel(h, object.TypeCommit)
	if err != nil {
		if errors.Is(err, object.ErrTypeMismatch) {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		return "", nil, err
	}
	c, err := r.repo.Store.ReadCommit(peeled)
	if err != nil {
		return "", nil, err
	}
	return peeled, c, nil
}

// ancestor follows first parents n times.
func (r *Resolver) ancestor(h object.Hash, n int) (object.Hash, error) {
	for i := 0; i < n; i++ {
		_, c, err := r.commit(h)
		if err != nil {
			return "", err
		}
		if len(c.Parents) == 0 {
			return "", fmt.Errorf("%s has no parent: %w", h.Short(), object.ErrNotFound)
		}
		h = c.Parents[0]
	}
	if n == 0 {
		peeled, _, err := r.commit(h)
		return peeled, err
	}
	return h, nil
}

// parent returns the n-th parent (1-based); n == 0 is the commit itself.
func (r *Resolver) parent(h object.Hash, n int) (object.Hash, error) {
	peeled, c, err := r.commit(h)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return peeled, nil
	}
	if n > len(c.Parents) {
		return "", fmt.Errorf("%s has no parent %d: %w", peeled.Short(), n, object.ErrNotFound)
	}
	return c.Parents[n-1], nil
}

func (r *Resolver) peel(h object.Hash, kind string) (object.Hash, error) {
	store := r.repo.Store
	var (
		peeled object.Hash
		err    error
	)
	switch kind {
	case "":
		peeled, _, err = store.PeelTags(h)
	case "object":
		return h, nil
	case "commit":
		peeled, err = store.Peel(h, object.TypeCommit)
	case "tree":
		peeled, err = store.Peel(h, object.TypeTree)
	case "blob":
		peeled, err = store.Peel(h, object.TypeBlob)
	case "tag":
		peeled, err = store.Peel(h, object.TypeTag)
	default:
		if strings.HasPrefix(kind, "/") {
			return "", fmt.Errorf("%w: commit message search", ErrUnsupportedSpec)
		}
		return "", fmt.Errorf("%w: unknown peel type %q", ErrInvalidSpec, kind)
	}
	if err != nil {
		if errors.Is(err, object.ErrTypeMismatch) {
			return "", fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		return "", err
	}
	return peeled, nil
}
