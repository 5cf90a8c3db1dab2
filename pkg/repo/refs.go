package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
)

// dwimRules are the ref lookup rules Git applies to a short name, in order.
var dwimRules = []string{
	"%s",
	"refs/%s",
	"refs/tags/%s",
	"refs/heads/%s",
	"refs/remotes/%s",
	"refs/remotes/%s/HEAD",
}

// ListRefs lists references under refs/, merging loose refs with
// packed-refs (loose entries win). Names are returned relative to the refs
// root, e.g. "heads/main", "tags/v1". Symbolic refs are resolved; refs that
// cannot be resolved are omitted, with a warning unless they are dangling.
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.GitDir, "refs")
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	dir := root
	if prefix != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)

	packed, err := r.readPackedRefs()
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	for full, ref := range packed {
		name, ok := strings.CutPrefix(full, "refs/")
		if !ok || !hasRefPrefix(name, prefix) {
			continue
		}
		refs[name] = ref.Hash
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		h, err := r.resolveRefDepth("refs/"+name, 0)
		if err != nil {
			if !errors.Is(err, ErrRefNotFound) {
				r.log.Warn("skipping unreadable ref", zap.String("ref", name), zap.Error(err))
			}
			return nil
		}
		refs[name] = h
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func hasRefPrefix(name, prefix string) bool {
	return prefix == "" || name == prefix || strings.HasPrefix(name, prefix+"/")
}

// DWIMRef expands a short ref name using Git's lookup rules and returns the
// full name of the first rule that matches together with its value.
func (r *Repo) DWIMRef(short string) (string, object.Hash, error) {
	if checkRefName(short) != nil {
		return "", "", fmt.Errorf("dwim ref %q: %w", short, ErrRefNotFound)
	}
	for _, rule := range dwimRules {
		full := fmt.Sprintf(rule, short)
		if rule == "%s" && !isFullRefName(full) {
			continue
		}
		h, err := r.resolveRefDepth(full, 0)
		if err == nil {
			return full, h, nil
		}
		if !errors.Is(err, ErrRefNotFound) {
			return "", "", fmt.Errorf("dwim ref %q: %w", short, err)
		}
	}
	return "", "", fmt.Errorf("dwim ref %q: %w", short, ErrRefNotFound)
}

// shortRefNames lists the refs below refs/<kind>/ by their short names,
// sorted.
func (r *Repo) shortRefNames(kind string) (map[string]object.Hash, []string, error) {
	refs, err := r.ListRefs(kind)
	if err != nil {
		return nil, nil, err
	}
	byName := make(map[string]object.Hash, len(refs))
	for full, h := range refs {
		byName[strings.TrimPrefix(full, kind+"/")] = h
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return byName, names, nil
}

// deleteRef removes the loose ref name and its reflog under the ref lock.
// A ref that exists only in packed-refs is reported as not found.
func (r *Repo) deleteRef(name string) error {
	if err := checkRefName(name); err != nil {
		return err
	}
	refPath := filepath.Join(r.GitDir, filepath.FromSlash(name))
	lockPath := refPath + ".lock"
	lock, err := acquireRefLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrRefNotFound)
		}
		return fmt.Errorf("lock %s: %w", name, err)
	}
	defer func() {
		_ = lock.Close()
		_ = os.Remove(lockPath)
	}()

	if err := os.Remove(refPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, ErrRefNotFound)
		}
		return err
	}
	_ = os.Remove(filepath.Join(r.GitDir, "logs", filepath.FromSlash(name)))
	return nil
}
