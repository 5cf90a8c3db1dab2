package object

import (
	"fmt"
	"strings"
)

// ResolvePrefix expands an abbreviated hex id to the single object it names.
// Loose and packed objects are both considered. It fails with ErrAmbiguous
// when more than one object shares the prefix and ErrNotFound when none does.
func (s *Store) ResolvePrefix(prefix string) (Hash, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if !IsHexPrefix(prefix) {
		return "", fmt.Errorf("resolve prefix %q: not a hex object id", prefix)
	}
	if len(prefix) == HashHexSize {
		h := Hash(prefix)
		if !s.Has(h) {
			return "", fmt.Errorf("resolve prefix %q: %w", prefix, ErrNotFound)
		}
		return h, nil
	}

	candidates := make(map[Hash]struct{}, 2)
	loose, err := s.listLooseWithPrefix(prefix)
	if err != nil {
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, err)
	}
	for _, h := range loose {
		candidates[h] = struct{}{}
	}
	for _, p := range s.loadPacks() {
		for _, h := range p.idx.FindPrefix(prefix, 2) {
			candidates[h] = struct{}{}
		}
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("resolve prefix %q: %w", prefix, ErrNotFound)
	case 1:
		for h := range candidates {
			return h, nil
		}
	}
	return "", fmt.Errorf("resolve prefix %q: %w", prefix, ErrAmbiguous)
}
