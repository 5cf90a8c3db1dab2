package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/revlist/pkg/object"
)

const branchPrefix = "refs/heads/"

// CreateBranch creates refs/heads/<name> at target. It fails if the branch
// exists, including when another writer creates it concurrently.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	ref := branchPrefix + name
	if err := checkRefName(ref); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	err := r.updateRef(ref, target, "branch: Created from "+string(target), "")
	switch {
	case errors.Is(err, ErrRefCASMismatch):
		return fmt.Errorf("create branch: branch %q already exists", name)
	case err != nil:
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes a loose branch other than the one HEAD points at.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if name == current {
		return fmt.Errorf("delete branch: %q is checked out", name)
	}
	if err := r.deleteRef(branchPrefix + name); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	return nil
}

// ListBranches returns the loose and packed branch names, sorted.
func (r *Repo) ListBranches() ([]string, error) {
	_, names, err := r.shortRefNames("heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return names, nil
}

// CurrentBranch returns the branch HEAD points at, or "" when HEAD is
// detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	name, ok := strings.CutPrefix(head, branchPrefix)
	if !ok {
		return "", nil
	}
	return name, nil
}
