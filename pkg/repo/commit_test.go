package repo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/revlist/pkg/object"
)

// initRepoWithCommit returns a fresh repository whose main branch holds a
// single root commit.
func initRepoWithCommit(t *testing.T) (*Repo, object.Hash) {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h, err := r.Commit(CommitSpec{Message: "initial commit"})
	if err != nil {
		t.Fatalf("Commit(initial): %v", err)
	}
	return r, h
}

func TestCommit_InitialAndChild(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	when := time.Unix(1700000000, 0).UTC()
	first, err := r.Commit(CommitSpec{Message: "first", AuthorTime: when})
	if err != nil {
		t.Fatalf("Commit(first): %v", err)
	}
	second, err := r.Commit(CommitSpec{Message: "second\n\nbody", AuthorTime: when.Add(time.Minute)})
	if err != nil {
		t.Fatalf("Commit(second): %v", err)
	}

	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if head != second {
		t.Fatalf("HEAD = %s, want %s", head, second)
	}

	c, err := r.Store.ReadCommit(second)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first {
		t.Fatalf("parents = %v, want [%s]", c.Parents, first)
	}
	if c.CommitterTimestamp != when.Add(time.Minute).Unix() {
		t.Fatalf("committer time = %d", c.CommitterTimestamp)
	}
	if c.Author != defaultIdentity || c.Committer != defaultIdentity {
		t.Fatalf("author/committer = %q/%q, want default identity", c.Author, c.Committer)
	}
	if c.Message != "second\n\nbody\n" {
		t.Fatalf("message = %q", c.Message)
	}

	entries, err := r.ReadReflog("main", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("reflog entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "commit: second" {
		t.Errorf("latest reflog message = %q", entries[0].Message)
	}
	if entries[1].Message != "commit (initial): first" {
		t.Errorf("first reflog message = %q", entries[1].Message)
	}
	if entries[1].OldHash != object.ZeroHash {
		t.Errorf("initial reflog old hash = %s, want zero hash", entries[1].OldHash)
	}
}

func TestCommit_ExplicitParents(t *testing.T) {
	r, base := initRepoWithCommit(t)

	side, err := r.WriteCommit(CommitSpec{Parents: []object.Hash{base}, Message: "side"})
	if err != nil {
		t.Fatalf("WriteCommit(side): %v", err)
	}
	merge, err := r.Commit(CommitSpec{Parents: []object.Hash{base, side}, Message: "merge"})
	if err != nil {
		t.Fatalf("Commit(merge): %v", err)
	}

	c, err := r.Store.ReadCommit(merge)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(c.Parents) != 2 || c.Parents[0] != base || c.Parents[1] != side {
		t.Fatalf("merge parents = %v", c.Parents)
	}
}

func TestCommit_DetachedHead(t *testing.T) {
	r, base := initRepoWithCommit(t)
	if err := r.DetachHead(base); err != nil {
		t.Fatalf("DetachHead: %v", err)
	}

	next, err := r.Commit(CommitSpec{Message: "detached"})
	if err != nil {
		t.Fatalf("Commit(detached): %v", err)
	}
	head, err := r.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != string(next) {
		t.Fatalf("detached HEAD = %q, want %s", head, next)
	}
	main, err := r.ResolveRef("main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if main != base {
		t.Fatalf("main moved to %s, want %s", main, base)
	}
}

func TestWriteCommit_DoesNotMoveRefs(t *testing.T) {
	r, base := initRepoWithCommit(t)
	if _, err := r.WriteCommit(CommitSpec{Parents: []object.Hash{base}, Message: "loose"}); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if head != base {
		t.Fatalf("HEAD = %s, want %s", head, base)
	}
}

func TestWriteCommit_Deterministic(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	spec := CommitSpec{
		Author:     "A U Thor <author@example.com>",
		AuthorTime: time.Unix(1112911993, 0).In(time.FixedZone("", -7*3600)),
		Message:    "initial",
	}
	h1, err := r.WriteCommit(spec)
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	h2, err := r.WriteCommit(spec)
	if err != nil {
		t.Fatalf("WriteCommit again: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("identical specs produced %s and %s", h1, h2)
	}

	c, err := r.Store.ReadCommit(h1)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if c.AuthorTimezone != "-0700" {
		t.Fatalf("author timezone = %q, want -0700", c.AuthorTimezone)
	}
}

func TestLog_FollowsFirstParent(t *testing.T) {
	r, base := initRepoWithCommit(t)
	var hashes []object.Hash
	hashes = append(hashes, base)
	for i := 0; i < 4; i++ {
		h, err := r.Commit(CommitSpec{Message: strings.Repeat("x", i+1)})
		if err != nil {
			t.Fatalf("Commit(%d): %v", i, err)
		}
		hashes = append(hashes, h)
	}

	tip := hashes[len(hashes)-1]
	commits, err := r.Log(tip, 3)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("Log returned %d commits, want 3", len(commits))
	}
	if commits[0].Message != "xxxx\n" || commits[2].Message != "xx\n" {
		t.Fatalf("Log order = %q, %q", commits[0].Message, commits[2].Message)
	}

	all, err := r.Log(tip, 100)
	if err != nil {
		t.Fatalf("Log(all): %v", err)
	}
	if len(all) != len(hashes) {
		t.Fatalf("Log(all) = %d commits, want %d", len(all), len(hashes))
	}
}

func TestLog_MissingCommit(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, err = r.Log(object.Hash(strings.Repeat("1", 40)), 1)
	if !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Log(missing) error = %v, want ErrNotFound", err)
	}
}
