package object

import "fmt"

// maxPeelDepth bounds tag-to-tag chains.
const maxPeelDepth = 32

// PeelTags follows annotated tags until it reaches a non-tag object and
// returns that object's id and type.
func (s *Store) PeelTags(h Hash) (Hash, ObjectType, error) {
	for depth := 0; depth < maxPeelDepth; depth++ {
		objType, data, err := s.Read(h)
		if err != nil {
			return "", "", err
		}
		if objType != TypeTag {
			return h, objType, nil
		}
		tag, err := UnmarshalTag(data)
		if err != nil {
			return "", "", fmt.Errorf("peel %s: %w", h, err)
		}
		h = tag.TargetHash
	}
	return "", "", fmt.Errorf("peel %s: tag chain deeper than %d", h, maxPeelDepth)
}

// Peel dereferences h until it reaches an object of type want: annotated
// tags are followed to their target and commits to their tree. Asking for a
// tag returns h itself only if it is a tag.
func (s *Store) Peel(h Hash, want ObjectType) (Hash, error) {
	objType, err := s.ReadType(h)
	if err != nil {
		return "", err
	}
	if objType == want {
		return h, nil
	}
	if want == TypeTag {
		return "", fmt.Errorf("peel %s: %w: %s is not a tag", h, ErrTypeMismatch, objType)
	}

	peeled, peeledType, err := s.PeelTags(h)
	if err != nil {
		return "", err
	}
	if peeledType == want {
		return peeled, nil
	}
	if peeledType == TypeCommit && want == TypeTree {
		c, err := s.ReadCommit(peeled)
		if err != nil {
			return "", err
		}
		return c.TreeHash, nil
	}
	return "", fmt.Errorf("peel %s: %w: cannot peel %s to %s", h, ErrTypeMismatch, peeledType, want)
}
