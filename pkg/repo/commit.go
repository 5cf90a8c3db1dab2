package repo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/revlist/pkg/object"
)

// CommitSpec describes a commit to write. Zero values are filled in: Tree
// with the empty tree, Author with the configured identity, AuthorTime with
// the current time, and Committer/CommitTime with the author values.
type CommitSpec struct {
	Tree       object.Hash
	Parents    []object.Hash
	Author     string // "Name <email>"
	AuthorTime time.Time
	Committer  string
	CommitTime time.Time
	Message    string
}

// WriteCommit stores a commit object built from spec without touching any
// ref.
func (r *Repo) WriteCommit(spec CommitSpec) (object.Hash, error) {
	if spec.Tree == "" {
		tree, err := r.Store.WriteTree(&object.TreeObj{})
		if err != nil {
			return "", fmt.Errorf("write commit: empty tree: %w", err)
		}
		spec.Tree = tree
	}
	if spec.Author == "" {
		spec.Author = r.Config.Identity()
	}
	if spec.AuthorTime.IsZero() {
		spec.AuthorTime = time.Now()
	}
	if spec.Committer == "" {
		spec.Committer = spec.Author
	}
	if spec.CommitTime.IsZero() {
		spec.CommitTime = spec.AuthorTime
	}
	message := spec.Message
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}

	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:           spec.Tree,
		Parents:            spec.Parents,
		Author:             spec.Author,
		Timestamp:          spec.AuthorTime.Unix(),
		AuthorTimezone:     formatTimezoneOffset(spec.AuthorTime),
		Committer:          spec.Committer,
		CommitterTimestamp: spec.CommitTime.Unix(),
		CommitterTimezone:  formatTimezoneOffset(spec.CommitTime),
		Message:            message,
	})
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}
	return h, nil
}

// Commit writes a commit on top of HEAD and advances HEAD's branch (or a
// detached HEAD) to it.
//
//  1. Resolve HEAD to get the parent commit (absent on an unborn branch)
//  2. Write the commit; spec.Parents, when set, replaces the HEAD parent
//  3. Update the branch ref with a compare-and-swap against the parent
func (r *Repo) Commit(spec CommitSpec) (object.Hash, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	parentHash, err := r.ResolveRef("HEAD")
	if err != nil && !errors.Is(err, ErrRefNotFound) {
		return "", fmt.Errorf("commit: %w", err)
	}
	if spec.Parents == nil && parentHash != "" {
		spec.Parents = []object.Hash{parentHash}
	}

	commitHash, err := r.WriteCommit(spec)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	msg := "commit: " + firstLine(spec.Message)
	if len(spec.Parents) == 0 {
		msg = "commit (initial): " + firstLine(spec.Message)
	}

	ref := head
	if !strings.HasPrefix(head, "refs/") {
		ref = "HEAD"
	}
	if err := r.updateRef(ref, commitHash, msg, parentHash); err != nil {
		return "", fmt.Errorf("commit: update ref %q: %w", ref, err)
	}

	return commitHash, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits newest first.
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj
	current := start

	for len(commits) < limit {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		commits = append(commits, c)

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return commits, nil
}
