package repo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/revlist/pkg/object"
)

const tagPrefix = "refs/tags/"

func tagRef(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("tag name is required")
	}
	if err := checkRefName(tagPrefix + name); err != nil {
		return "", fmt.Errorf("invalid tag name %q", name)
	}
	return tagPrefix + name, nil
}

// setTag points ref at h. Without force the tag must not exist yet.
func (r *Repo) setTag(ref string, h object.Hash, force bool) error {
	var expect []object.Hash
	if !force {
		expect = []object.Hash{""}
	}
	err := r.updateRef(ref, h, "tag: tagging "+string(h), expect...)
	if errors.Is(err, ErrRefCASMismatch) {
		return fmt.Errorf("tag %q already exists", strings.TrimPrefix(ref, tagPrefix))
	}
	return err
}

// CreateTag points the lightweight tag refs/tags/<name> at target.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) error {
	ref, err := tagRef(name)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if _, err := object.ParseHash(string(target)); err != nil {
		return fmt.Errorf("create tag %q: target: %w", name, err)
	}
	if err := r.setTag(ref, target, force); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// CreateAnnotatedTag writes a tag object for target and points
// refs/tags/<name> at it. An empty tagger uses the configured identity.
func (r *Repo) CreateAnnotatedTag(name string, target object.Hash, tagger, message string, force bool) (object.Hash, error) {
	ref, err := tagRef(name)
	if err != nil {
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("create annotated tag: message is required")
	}
	targetType, err := r.Store.ReadType(target)
	if err != nil {
		return "", fmt.Errorf("create annotated tag: target %s: %w", target, err)
	}
	if tagger = strings.TrimSpace(tagger); tagger == "" {
		tagger = r.Config.Identity()
	}

	if !force {
		if _, err := r.ResolveRef(ref); err == nil {
			return "", fmt.Errorf("create annotated tag: tag %q already exists", strings.TrimPrefix(ref, tagPrefix))
		}
	}
	now := time.Now()
	tagHash, err := r.Store.WriteTag(&object.TagObj{
		TargetHash: target,
		TargetType: targetType,
		Name:       strings.TrimPrefix(ref, tagPrefix),
		Tagger:     fmt.Sprintf("%s %d %s", tagger, now.Unix(), formatTimezoneOffset(now)),
		Message:    message + "\n",
	})
	if err != nil {
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	if err := r.setTag(ref, tagHash, force); err != nil {
		return "", fmt.Errorf("create annotated tag: %w", err)
	}
	return tagHash, nil
}

// DeleteTag removes a loose tag ref.
func (r *Repo) DeleteTag(name string) error {
	ref, err := tagRef(name)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if err := r.deleteRef(ref); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ResolveTag returns the value of refs/tags/<name> without peeling.
func (r *Repo) ResolveTag(name string) (object.Hash, error) {
	ref, err := tagRef(name)
	if err != nil {
		return "", fmt.Errorf("resolve tag: %w", err)
	}
	return r.ResolveRef(ref)
}

// ListTags returns the tag names, sorted.
func (r *Repo) ListTags() ([]string, error) {
	_, names, err := r.shortRefNames("tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return names, nil
}

// ListTagsWithHashes maps each tag name to its unpeeled value.
func (r *Repo) ListTagsWithHashes() (map[string]object.Hash, error) {
	tags, _, err := r.shortRefNames("tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// formatTimezoneOffset renders t's zone as Git's "+hhmm".
func formatTimezoneOffset(t time.Time) string {
	_, offset := t.Zone()
	sign := byte('+')
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d%02d", sign, offset/3600, offset%3600/60)
}
