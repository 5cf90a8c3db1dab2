package repo

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestBranch_Lifecycle(t *testing.T) {
	r, h := initRepoWithCommit(t)

	for _, name := range []string{"feature", "fix/parser"} {
		if err := r.CreateBranch(name, h); err != nil {
			t.Fatalf("CreateBranch(%s): %v", name, err)
		}
	}
	got, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if want := []string{"feature", "fix/parser", "main"}; !slices.Equal(got, want) {
		t.Fatalf("ListBranches = %v, want %v", got, want)
	}

	if err := r.DeleteBranch("fix/parser"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(r.GitDir, "logs", "refs", "heads", "fix", "parser")); !os.IsNotExist(err) {
		t.Fatalf("reflog of deleted branch: %v", err)
	}
	if got, _ := r.ListBranches(); !slices.Equal(got, []string{"feature", "main"}) {
		t.Fatalf("ListBranches after delete = %v", got)
	}
}

func TestBranch_Errors(t *testing.T) {
	r, h := initRepoWithCommit(t)
	if err := r.CreateBranch("feature", h); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	tests := []struct {
		name string
		op   func() error
		is   error
	}{
		{"duplicate", func() error { return r.CreateBranch("feature", h) }, nil},
		{"bad name", func() error { return r.CreateBranch("a..b", h) }, nil},
		{"bad target", func() error { return r.CreateBranch("other", "nothex") }, nil},
		{"delete current", func() error { return r.DeleteBranch("main") }, nil},
		{"delete missing", func() error { return r.DeleteBranch("ghost") }, ErrRefNotFound},
		{"delete missing nested", func() error { return r.DeleteBranch("no/such/dir") }, ErrRefNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if err == nil {
				t.Fatal("error = nil")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestBranch_CurrentBranch(t *testing.T) {
	r, h := initRepoWithCommit(t)

	if got, err := r.CurrentBranch(); err != nil || got != "main" {
		t.Fatalf("CurrentBranch = %q, %v; want main", got, err)
	}
	if err := r.DetachHead(h); err != nil {
		t.Fatalf("DetachHead: %v", err)
	}
	if got, err := r.CurrentBranch(); err != nil || got != "" {
		t.Fatalf("CurrentBranch detached = %q, %v; want empty", got, err)
	}
	if err := r.DeleteBranch("main"); err != nil {
		t.Fatalf("DeleteBranch(main) with detached HEAD: %v", err)
	}
}

func TestBranch_ListEmpty(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	branches, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("ListBranches on an unborn repository = %v", branches)
	}
}

func TestBranch_CreateWritesRefAndReflog(t *testing.T) {
	r, h := initRepoWithCommit(t)
	if err := r.CreateBranch("feature", h); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(r.GitDir, "refs", "heads", "feature"))
	if err != nil {
		t.Fatalf("read ref: %v", err)
	}
	if string(data) != string(h)+"\n" {
		t.Fatalf("ref file = %q", data)
	}
	entries, err := r.ReadReflog("feature", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "branch: Created from "+string(h) {
		t.Fatalf("reflog = %+v", entries)
	}
}

func TestBranch_PackedBranches(t *testing.T) {
	r, h := initRepoWithCommit(t)
	writePackedRefs(t, r, string(h)+" refs/heads/release/1.x\n")

	got, err := r.ListBranches()
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if want := []string{"main", "release/1.x"}; !slices.Equal(got, want) {
		t.Fatalf("ListBranches = %v, want %v", got, want)
	}
	if err := r.CreateBranch("release/1.x", h); err == nil {
		t.Fatal("CreateBranch over a packed branch = nil error")
	}
	if err := r.DeleteBranch("release/1.x"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("DeleteBranch(packed only) = %v, want ErrRefNotFound", err)
	}
}
