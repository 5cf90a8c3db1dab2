package repo

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
)

// PackedRef is one entry of the packed-refs file. Peeled is set for
// annotated tags when the file records the tag's target ("^<id>" lines).
type PackedRef struct {
	Name   string
	Hash   object.Hash
	Peeled object.Hash
}

// readPackedRefs parses GitDir/packed-refs. A missing file yields an empty
// map. Lines that do not parse are skipped with a warning.
func (r *Repo) readPackedRefs() (map[string]PackedRef, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]PackedRef{}, nil
		}
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}

	refs := make(map[string]PackedRef)
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "^"):
			peeled, err := object.ParseHash(line[1:])
			if err != nil || last == "" {
				r.log.Warn("skipping malformed packed-refs line", zap.Int("line", lineNo))
				continue
			}
			ref := refs[last]
			ref.Peeled = peeled
			refs[last] = ref
			continue
		}

		hashText, name, ok := strings.Cut(line, " ")
		h, err := object.ParseHash(hashText)
		if !ok || err != nil || checkRefName(name) != nil {
			r.log.Warn("skipping malformed packed-refs line", zap.Int("line", lineNo))
			last = ""
			continue
		}
		refs[name] = PackedRef{Name: name, Hash: h}
		last = name
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}
	return refs, nil
}

// PackedRefs returns the entries of the packed-refs file keyed by full ref
// name.
func (r *Repo) PackedRefs() (map[string]PackedRef, error) {
	return r.readPackedRefs()
}
