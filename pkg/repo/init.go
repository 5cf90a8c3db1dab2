package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
)

var (
	ErrNotRepository                   = errors.New("not a git repository")
	ErrRefNotFound                     = errors.New("reference not found")
	ErrRefCASMismatch                  = errors.New("ref compare-and-swap mismatch")
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second

	// maxSymrefDepth bounds chains of symbolic refs.
	maxSymrefDepth = 5
)

// Init creates a new repository with a .git directory under path. It
// creates HEAD (pointing at refs/heads/main), config, objects/, refs/heads
// and refs/tags. Returns an error if .git already exists.
func Init(path string, opts ...Option) (*Repo, error) {
	return initRepo(path, filepath.Join(path, ".git"), false, opts)
}

// InitBare creates a bare repository whose git directory is path itself.
func InitBare(path string, opts ...Option) (*Repo, error) {
	return initRepo(path, path, true, opts)
}

func initRepo(root, gitDir string, bare bool, opts []Option) (*Repo, error) {
	if _, err := os.Stat(filepath.Join(gitDir, "HEAD")); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects", "pack"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "refs", "tags"),
		filepath.Join(gitDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(gitDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	if err := writeDefaultConfig(gitDir, bare); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	o := buildOptions(opts)
	cfg, err := readConfig(gitDir)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return newRepo(root, gitDir, cfg, o), nil
}

// Open searches upward from path for a repository and opens it. At each
// level it accepts a .git directory, a .git file containing "gitdir: <path>",
// or the directory itself when it is a bare repository.
func Open(path string, opts ...Option) (*Repo, error) {
	o := buildOptions(opts)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}
	ceiling := ""
	if o.ceilingDir != "" {
		if ceiling, err = filepath.Abs(o.ceilingDir); err != nil {
			return nil, fmt.Errorf("open: abs ceiling: %w", err)
		}
	}

	cur := abs
	for {
		gitDir, err := findGitDir(cur)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if gitDir != "" {
			return openAt(cur, gitDir, o)
		}
		if isGitDir(cur) {
			return openAt(cur, cur, o)
		}

		parent := filepath.Dir(cur)
		if parent == cur || cur == ceiling {
			return nil, fmt.Errorf("open %s: %w (or any parent)", abs, ErrNotRepository)
		}
		cur = parent
	}
}

// findGitDir returns the git directory named by dir/.git, or "" when dir has
// no .git entry.
func findGitDir(dir string) (string, error) {
	dotGit := filepath.Join(dir, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return "", nil
	}
	if info.IsDir() {
		if isGitDir(dotGit) {
			return dotGit, nil
		}
		return "", nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dotGit, err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "gitdir:") {
		return "", fmt.Errorf("%s: invalid gitfile format", dotGit)
	}
	target := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	if !isGitDir(target) {
		return "", fmt.Errorf("%s: gitdir %s: %w", dotGit, target, ErrNotRepository)
	}
	return target, nil
}

// isGitDir reports whether dir has the layout of a git directory.
func isGitDir(dir string) bool {
	if info, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil || info.IsDir() {
		return false
	}
	for _, sub := range []string{"objects", "refs"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

func openAt(root, gitDir string, o *options) (*Repo, error) {
	cfg, err := readConfig(gitDir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", gitDir, err)
	}
	if root == gitDir || cfg.Bare {
		root = gitDir
	}
	o.log.Debug("opened repository",
		zap.String("git_dir", gitDir),
		zap.String("root", root),
		zap.Bool("bare", cfg.Bare))
	return newRepo(root, gitDir, cfg, o), nil
}

// Head reads HEAD. If the content starts with "ref: ", it returns the ref
// path (e.g., "refs/heads/main"). Otherwise it returns the raw content as a
// detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimSpace(string(data))

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimSpace(strings.TrimPrefix(content, "ref: ")), nil
	}
	return content, nil
}

// SetHead points HEAD at the given ref, e.g. "refs/heads/feature".
func (r *Repo) SetHead(ref string) error {
	if !strings.HasPrefix(ref, "refs/") {
		return fmt.Errorf("set head: %q is not a full ref name", ref)
	}
	return writeFileAtomic(filepath.Join(r.GitDir, "HEAD"), []byte("ref: "+ref+"\n"))
}

// DetachHead points HEAD directly at a commit.
func (r *Repo) DetachHead(h object.Hash) error {
	return r.UpdateRefCAS("HEAD", h)
}

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. "HEAD", other all-caps pseudo refs and names starting with "refs/" are
//     read as given. Symbolic refs are followed.
//  2. Otherwise name is taken as a branch, "refs/heads/<name>".
//
// Loose ref files take precedence over packed-refs. A missing ref yields an
// error wrapping ErrRefNotFound.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	full := name
	if !isFullRefName(name) {
		full = "refs/heads/" + name
	}
	h, err := r.resolveRefDepth(full, 0)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return h, nil
}

func (r *Repo) resolveRefDepth(name string, depth int) (object.Hash, error) {
	if depth > maxSymrefDepth {
		return "", fmt.Errorf("symbolic ref chain deeper than %d", maxSymrefDepth)
	}
	value, err := r.readRefValue(name)
	if err != nil {
		return "", err
	}
	if target, ok := strings.CutPrefix(value, "ref: "); ok {
		return r.resolveRefDepth(strings.TrimSpace(target), depth+1)
	}
	h, err := object.ParseHash(value)
	if err != nil {
		return "", fmt.Errorf("ref %s: %w", name, err)
	}
	return h, nil
}

// readRefValue returns the raw value of a ref, loose file first, then
// packed-refs.
func (r *Repo) readRefValue(name string) (string, error) {
	if err := checkRefName(name); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(r.GitDir, filepath.FromSlash(name)))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !isMissingRefErr(err) {
		return "", err
	}
	packed, err := r.readPackedRefs()
	if err != nil {
		return "", err
	}
	if ref, ok := packed[name]; ok {
		return string(ref.Hash), nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrRefNotFound)
}

// isMissingRefErr reports whether a ref file read failed because no file
// exists at that path, including when a directory or a file is in the way.
func isMissingRefErr(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, syscall.EISDIR) || errors.Is(err, syscall.ENOTDIR)
}

// isFullRefName reports whether name is read as given: it starts with
// "refs/" or is an all-caps pseudo ref such as HEAD or ORIG_HEAD.
func isFullRefName(name string) bool {
	if strings.HasPrefix(name, "refs/") {
		return true
	}
	if name == "" {
		return false
	}
	for _, c := range name {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

// checkRefName rejects names that could escape the git directory or that
// Git refuses.
func checkRefName(name string) error {
	switch {
	case name == "",
		strings.HasPrefix(name, "/"),
		strings.HasSuffix(name, "/"),
		strings.HasSuffix(name, ".lock"),
		strings.Contains(name, ".."),
		strings.Contains(name, "//"),
		strings.Contains(name, "@{"),
		strings.ContainsAny(name, " \t\n\r~^:?*[\\\x00"):
		return fmt.Errorf("invalid ref name %q", name)
	}
	return nil
}

// UpdateRef writes a hash to the named ref file. Parent directories are
// created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file using lockfile + rename
// atomic semantics. If expectedOld is provided, the update only succeeds
// when the current ref hash matches it; "" expects the ref to be absent.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	return r.updateRef(name, h, "update", expectedOld...)
}

func (r *Repo) updateRef(name string, h object.Hash, message string, expectedOld ...object.Hash) error {
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}
	if err := checkRefName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	if _, err := object.ParseHash(string(h)); err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}

	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := r.currentRefHash(name)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, message); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}
	// Git also records updates of the branch HEAD points at in HEAD's log.
	if head, err := r.Head(); err == nil && head == name {
		if err := r.appendReflog("HEAD", oldHash, h, message); err != nil {
			return &RefUpdateReflogError{Ref: "HEAD", OldHash: oldHash, NewHash: h, Err: err}
		}
	}

	return nil
}

// currentRefHash returns the direct value of name, or "" when it does not
// exist. Symbolic refs are reported as "".
func (r *Repo) currentRefHash(name string) (object.Hash, error) {
	value, err := r.readRefValue(name)
	if err != nil {
		if errors.Is(err, ErrRefNotFound) {
			return "", nil
		}
		return "", err
	}
	if strings.HasPrefix(value, "ref: ") {
		return "", nil
	}
	return object.Hash(value), nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: tmpfile: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: close: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: rename: %w", filepath.Base(path), err)
	}
	return nil
}
