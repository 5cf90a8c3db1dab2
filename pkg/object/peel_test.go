package object

import (
	"errors"
	"testing"
)

func writeTaggedCommit(t *testing.T, s *Store) (tree, commit, tag, tagOfTag Hash) {
	t.Helper()
	var err error
	tree, err = s.WriteTree(&TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	commit, err = s.WriteCommit(&CommitObj{TreeHash: tree, Author: "A <a@example.com>", Timestamp: 1, Message: "m\n"})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	tag, err = s.WriteTag(&TagObj{TargetHash: commit, TargetType: TypeCommit, Name: "v1", Message: "v1\n"})
	if err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	tagOfTag, err = s.WriteTag(&TagObj{TargetHash: tag, TargetType: TypeTag, Name: "v1-signed", Message: "wrap\n"})
	if err != nil {
		t.Fatalf("WriteTag(nested): %v", err)
	}
	return tree, commit, tag, tagOfTag
}

func TestPeelTags(t *testing.T) {
	s := tempStore(t)
	_, commit, tag, tagOfTag := writeTaggedCommit(t, s)

	for _, start := range []Hash{commit, tag, tagOfTag} {
		got, objType, err := s.PeelTags(start)
		if err != nil {
			t.Fatalf("PeelTags(%s): %v", start, err)
		}
		if got != commit || objType != TypeCommit {
			t.Fatalf("PeelTags(%s) = %s %q, want %s commit", start, got, objType, commit)
		}
	}
}

func TestPeel(t *testing.T) {
	s := tempStore(t)
	tree, commit, tag, tagOfTag := writeTaggedCommit(t, s)
	blob, err := s.WriteBlob(&Blob{Data: []byte("x")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	tests := []struct {
		name    string
		start   Hash
		want    ObjectType
		wantID  Hash
		wantErr error
	}{
		{name: "commit-to-commit", start: commit, want: TypeCommit, wantID: commit},
		{name: "tag-to-commit", start: tagOfTag, want: TypeCommit, wantID: commit},
		{name: "tag-to-tree", start: tag, want: TypeTree, wantID: tree},
		{name: "commit-to-tree", start: commit, want: TypeTree, wantID: tree},
		{name: "tag-to-tag", start: tag, want: TypeTag, wantID: tag},
		{name: "commit-to-tag", start: commit, want: TypeTag, wantErr: ErrTypeMismatch},
		{name: "blob-to-commit", start: blob, want: TypeCommit, wantErr: ErrTypeMismatch},
		{name: "tree-to-commit", start: tree, want: TypeCommit, wantErr: ErrTypeMismatch},
		{name: "missing", start: HashObject(TypeBlob, []byte("missing")), want: TypeCommit, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Peel(tt.start, tt.want)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Peel error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Peel: %v", err)
			}
			if got != tt.wantID {
				t.Fatalf("Peel = %s, want %s", got, tt.wantID)
			}
		})
	}
}
