package revlist

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/repo"
	"github.com/odvcencio/revlist/pkg/revparse"
	"github.com/odvcencio/revlist/pkg/revwalk"
)

func TestRun_WritesIDs(t *testing.T) {
	walk := newFakeWalk()
	walk.out = []object.Hash{"one", "two", "three"}

	var buf bytes.Buffer
	if err := Run(newFakeResolver("A"), walk, []string{"A"}, &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := buf.String(); got != "one\ntwo\nthree\n" {
		t.Fatalf("output = %q", got)
	}
	if walk.closes != 1 {
		t.Fatalf("Close called %d times, want 1", walk.closes)
	}
}

func TestRun_ConfigErrorSkipsWalk(t *testing.T) {
	walk := newFakeWalk()
	walk.out = []object.Hash{"one"}

	var buf bytes.Buffer
	err := Run(newFakeResolver("A"), walk, []string{"A", "nope"}, &buf)
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Action != ActionParseOptions {
		t.Fatalf("Run error = %v, want a %q error", err, ActionParseOptions)
	}
	if walk.nexts != 0 {
		t.Fatalf("Next called %d times after a configuration error", walk.nexts)
	}
	if buf.Len() != 0 {
		t.Fatalf("output = %q, want none", buf.String())
	}
	if walk.closes != 1 {
		t.Fatalf("Close called %d times, want 1", walk.closes)
	}
}

func TestRun_TraversalError(t *testing.T) {
	walk := newFakeWalk()
	walk.out = []object.Hash{"one"}
	walk.nextErr = fmt.Errorf("revwalk: read commit two: %w", object.ErrNotFound)

	var buf bytes.Buffer
	err := Run(newFakeResolver(), walk, nil, &buf)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Run error = %v, want *Error", err)
	}
	if rerr.Kind != KindTraversal || rerr.Action != ActionWalk {
		t.Fatalf("error = %+v, want traversal while %q", rerr, ActionWalk)
	}
	if rerr.Code() != CodeNotFound {
		t.Fatalf("Code = %d, want %d", rerr.Code(), CodeNotFound)
	}
	if buf.String() != "one\n" {
		t.Fatalf("output = %q, want the id produced before the failure", buf.String())
	}
	if walk.closes != 1 {
		t.Fatalf("Close called %d times, want 1", walk.closes)
	}
}

func TestRun_CloseError(t *testing.T) {
	walk := newFakeWalk()
	walk.closeErr = errors.New("release failed")

	err := Run(newFakeResolver(), walk, nil, &bytes.Buffer{})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Kind != KindTraversal {
		t.Fatalf("Run error = %v, want a traversal error", err)
	}
	if rerr.Code() != CodeGeneric {
		t.Fatalf("Code = %d, want %d", rerr.Code(), CodeGeneric)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRun_WriteError(t *testing.T) {
	walk := newFakeWalk()
	walk.out = []object.Hash{"one"}

	err := Run(newFakeResolver(), walk, nil, failingWriter{})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Action != ActionWriteOutput {
		t.Fatalf("Run error = %v, want a %q error", err, ActionWriteOutput)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &revparse.SpecError{Spec: "x", Err: object.ErrNotFound}, CodeNotFound},
		{"missing ref", fmt.Errorf("resolve: %w", repo.ErrRefNotFound), CodeNotFound},
		{"not a repository", repo.ErrNotRepository, CodeNotFound},
		{"not a commit", revwalk.ErrNotCommit, CodeNotFound},
		{"ambiguous", &revparse.SpecError{Spec: "abcd", Err: object.ErrAmbiguous}, CodeAmbiguous},
		{"invalid", fmt.Errorf("%w: bad", revparse.ErrInvalidSpec), CodeInvalidSpec},
		{"unsupported", fmt.Errorf("%w: symmetric", revparse.ErrUnsupportedSpec), CodeInvalidSpec},
		{"invalid type peel", fmt.Errorf("%w: %w", revparse.ErrInvalidSpec, object.ErrTypeMismatch), CodeInvalidSpec},
		{"other", errors.New("boom"), CodeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{Kind: KindResolution, Action: ActionParseOptions, Err: tt.err}
			if got := e.Code(); got != tt.want {
				t.Fatalf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Kind: KindResolution, Action: ActionParseOptions, Err: &revparse.SpecError{Spec: "nope", Err: object.ErrNotFound}}
	want := "parsing options: revspec 'nope': object not found"
	if got := e.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if KindUnsupportedSpec.String() != "unsupported spec" {
		t.Fatalf("KindUnsupportedSpec.String() = %q", KindUnsupportedSpec.String())
	}
}

// history is a repository with
//
//	a(1) <- b(2) <- c(3) <- d(5)
//	          \            /
//	           +-- e(4) <-+
//
// where main -> d and topic -> e.
type history struct {
	r     *repo.Repo
	names map[object.Hash]string
}

func newHistory(t *testing.T) *history {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := &history{r: r, names: make(map[object.Hash]string)}
	ids := make(map[string]object.Hash)
	commit := func(name string, when int64, parents ...string) {
		var ps []object.Hash
		for _, p := range parents {
			ps = append(ps, ids[p])
		}
		id, err := r.WriteCommit(repo.CommitSpec{
			Parents:    ps,
			AuthorTime: time.Unix(1700000000+when*3600, 0).UTC(),
			Message:    name,
		})
		if err != nil {
			t.Fatalf("WriteCommit(%s): %v", name, err)
		}
		ids[name] = id
		h.names[id] = name
	}
	commit("a", 1)
	commit("b", 2, "a")
	commit("c", 3, "b")
	commit("e", 4, "b")
	commit("d", 5, "c", "e")
	if err := r.UpdateRef("refs/heads/main", ids["d"]); err != nil {
		t.Fatalf("UpdateRef(main): %v", err)
	}
	if err := r.UpdateRef("refs/heads/topic", ids["e"]); err != nil {
		t.Fatalf("UpdateRef(topic): %v", err)
	}
	return h
}

// list runs args against the repository and maps the printed ids back to
// commit names.
func (h *history) list(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := List(Config{Dir: h.r.RootDir, Args: args, Out: &buf})
	var names []string
	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		if len(line) != object.HashHexSize {
			t.Fatalf("output line %q is not a full id", line)
		}
		name, ok := h.names[object.Hash(line)]
		if !ok {
			t.Fatalf("output line %q is not a known commit", line)
		}
		names = append(names, name)
	}
	return strings.Join(names, " "), err
}

func TestList(t *testing.T) {
	h := newHistory(t)
	tests := []struct {
		args string
		want string
	}{
		{"main", "d e c b a"},
		{"HEAD", "d e c b a"},
		{"main ^topic", "d c"},
		{"topic..main", "d c"},
		{"main..topic", ""},
		{"--not topic..main", ""},
		{"--not topic --not main", "d c"},
		{"--not --not main", "d e c b a"},
		{"main main~0 refs/heads/main", "d e c b a"},
		{"main^2", "e b a"},
		{"main~2", "b a"},
		{"--topo-order --reverse main", "a b c e d"},
		{"--date-order topic", "e b a"},
		{"--reverse --reverse main ^main~1", "d e"},
		{"main ^main", ""},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := h.list(t, strings.Fields(tt.args)...)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got != tt.want {
				t.Fatalf("List(%s) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestList_Errors(t *testing.T) {
	h := newHistory(t)
	tests := []struct {
		args     string
		wantKind Kind
		wantCode int
	}{
		{"main...topic", KindUnsupportedSpec, CodeInvalidSpec},
		{"^main...topic", KindUnsupportedSpec, CodeInvalidSpec},
		{"--not ^main...topic", KindUnsupportedSpec, CodeInvalidSpec},
		{"main..topic...main", KindUnsupportedSpec, CodeInvalidSpec},
		{"main nope", KindResolution, CodeNotFound},
		{"main^3", KindResolution, CodeNotFound},
		{"main^{", KindResolution, CodeInvalidSpec},
		{"main:README", KindUnsupportedSpec, CodeInvalidSpec},
		{"main^{tree}", KindResolution, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := h.list(t, strings.Fields(tt.args)...)
			var rerr *Error
			if !errors.As(err, &rerr) {
				t.Fatalf("List error = %v, want *Error", err)
			}
			if rerr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v (%v)", rerr.Kind, tt.wantKind, rerr)
			}
			if rerr.Code() != tt.wantCode {
				t.Errorf("Code = %d, want %d (%v)", rerr.Code(), tt.wantCode, rerr)
			}
			if rerr.Action != ActionParseOptions {
				t.Errorf("Action = %q, want %q", rerr.Action, ActionParseOptions)
			}
			if got != "" {
				t.Errorf("output = %q, want none", got)
			}
		})
	}
}

func TestList_NotARepository(t *testing.T) {
	err := List(Config{Dir: t.TempDir(), Out: &bytes.Buffer{}})
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("List error = %v, want *Error", err)
	}
	if rerr.Kind != KindInitialization || rerr.Action != ActionOpenRepository {
		t.Fatalf("error = %+v, want initialization while %q", rerr, ActionOpenRepository)
	}
	if rerr.Code() != CodeNotFound {
		t.Fatalf("Code = %d, want %d", rerr.Code(), CodeNotFound)
	}
}

func TestList_NoArguments(t *testing.T) {
	h := newHistory(t)
	got, err := h.list(t)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got != "" {
		t.Fatalf("List() = %q, want no output", got)
	}
}
