package object

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHashObjectKnownIDs(t *testing.T) {
	tests := []struct {
		name    string
		objType ObjectType
		data    []byte
		want    Hash
	}{
		{name: "blob", objType: TypeBlob, data: []byte("hello\n"), want: "ce013625030ba8dba906f756967f9e9ca394464a"},
		{name: "empty-blob", objType: TypeBlob, data: nil, want: "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
		{name: "empty-tree", objType: TypeTree, data: nil, want: "4b825dc642cb6eb9a060e54bf8d69288fbee4904"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashObject(tt.objType, tt.data); got != tt.want {
				t.Fatalf("HashObject = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("CE013625030BA8DBA906F756967F9E9CA394464A")
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if h != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Fatalf("ParseHash = %s, want lower case", h)
	}
	for _, bad := range []string{"", "ce01", "zz013625030ba8dba906f756967f9e9ca394464a", "ce013625030ba8dba906f756967f9e9ca394464a0"} {
		if _, err := ParseHash(bad); err == nil {
			t.Errorf("ParseHash(%q) = nil error, want failure", bad)
		}
	}
}

func TestIsHexPrefix(t *testing.T) {
	tests := map[string]bool{
		"abc":  false,
		"abcd": true,
		"ABCD": true,
		"abcg": false,
		"ce013625030ba8dba906f756967f9e9ca394464a":  true,
		"ce013625030ba8dba906f756967f9e9ca394464a0": false,
	}
	for in, want := range tests {
		if got := IsHexPrefix(in); got != want {
			t.Errorf("IsHexPrefix(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHashShortAndZero(t *testing.T) {
	h := Hash("ce013625030ba8dba906f756967f9e9ca394464a")
	if h.Short() != "ce01362" {
		t.Fatalf("Short = %q", h.Short())
	}
	if h.IsZero() {
		t.Fatal("IsZero = true for real id")
	}
	if !ZeroHash.IsZero() || !Hash("").IsZero() {
		t.Fatal("IsZero = false for zero id")
	}
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir)
}

func TestStoreWriteRead(t *testing.T) {
	s := tempStore(t)
	data := []byte("hello world")
	h, err := s.Write(TypeBlob, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(h) != HashHexSize {
		t.Errorf("Hash length: got %d, want %d", len(h), HashHexSize)
	}

	gotType, gotData, err := s.Read(h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotType != TypeBlob {
		t.Errorf("Type: got %q, want %q", gotType, TypeBlob)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("Data: got %q, want %q", gotData, data)
	}

	// A fresh store has no cache, so this exercises the loose path.
	gotType, gotData, err = NewStore(s.Root()).Read(h)
	if err != nil {
		t.Fatalf("Read(fresh store): %v", err)
	}
	if gotType != TypeBlob || !bytes.Equal(gotData, data) {
		t.Fatalf("Read(fresh store) = %q %q", gotType, gotData)
	}
}

func TestStoreReadReturnsPrivateCopy(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("immutable"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, data, err := s.Read(h)
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if string(data) != "immutable" {
			t.Fatalf("Read %d = %q after an earlier caller changed its copy", i, data)
		}
		copy(data, "XXXX")
	}
}

func TestStoreHas(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("present"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Has(h) {
		t.Error("Has returned false for written object")
	}
	if s.Has(HashObject(TypeBlob, []byte("absent"))) {
		t.Error("Has returned true for missing object")
	}
	if s.Has("short") {
		t.Error("Has returned true for malformed id")
	}
}

func TestStoreFanoutLayout(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("hello\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(s.Root(), "objects", "ce", "013625030ba8dba906f756967f9e9ca394464a")
	if h != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Fatalf("Write id = %s", h)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected loose object at %s: %v", path, err)
	}
	// zlib streams start with CMF 0x78.
	if len(raw) == 0 || raw[0] != 0x78 {
		t.Fatalf("loose object is not zlib-compressed: % x", raw[:min(len(raw), 4)])
	}
}

func TestStoreDuplicateWrite(t *testing.T) {
	s := tempStore(t)
	h1, err := s.Write(TypeBlob, []byte("same"))
	if err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	h2, err := s.Write(TypeBlob, []byte("same"))
	if err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("duplicate write ids differ: %s != %s", h1, h2)
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.Read(HashObject(TypeBlob, []byte("missing")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(missing) error = %v, want ErrNotFound", err)
	}
	_, _, err = s.Read("abcd")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read(short) error = %v, want ErrNotFound", err)
	}
}

func TestStoreReadCorruptLooseObject(t *testing.T) {
	s := tempStore(t)
	h, err := s.Write(TypeBlob, []byte("will be corrupted"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.WriteFile(s.objectPath(h), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := NewStore(s.Root()).Read(h); err == nil {
		t.Fatal("expected error reading corrupt loose object")
	}
}

func TestParseObjectEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: "blob 3\x00abc"},
		{name: "no-nul", raw: "blob 3abc", wantErr: true},
		{name: "no-space", raw: "blob3\x00abc", wantErr: true},
		{name: "bad-length", raw: "blob x\x00abc", wantErr: true},
		{name: "length-mismatch", raw: "blob 4\x00abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objType, data, err := parseObjectEnvelope([]byte(tt.raw), "test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseObjectEnvelope: %v", err)
			}
			if objType != TypeBlob || string(data) != "abc" {
				t.Fatalf("parseObjectEnvelope = %q %q", objType, data)
			}
		})
	}
}

func TestStoreWriteReadTypedObjects(t *testing.T) {
	s := tempStore(t)

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("package main\n")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	blob, err := s.ReadBlob(blobHash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != "package main\n" {
		t.Fatalf("ReadBlob data = %q", blob.Data)
	}

	treeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
		{Name: "main.go", Mode: TreeModeFile, Hash: blobHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	tree, err := s.ReadTree(treeHash)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].Hash != blobHash {
		t.Fatalf("ReadTree entries = %+v", tree.Entries)
	}

	commitHash, err := s.WriteCommit(&CommitObj{
		TreeHash:  treeHash,
		Author:    "A U Thor <author@example.com>",
		Timestamp: 1700000000,
		Message:   "initial\n",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	commit, err := s.ReadCommit(commitHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if commit.TreeHash != treeHash || commit.CommitTime() != 1700000000 {
		t.Fatalf("ReadCommit = %+v", commit)
	}

	tagHash, err := s.WriteTag(&TagObj{
		TargetHash: commitHash,
		TargetType: TypeCommit,
		Name:       "v1.0",
		Tagger:     "A U Thor <author@example.com> 1700000000 +0000",
		Message:    "release\n",
	})
	if err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	tag, err := s.ReadTag(tagHash)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if tag.TargetHash != commitHash || tag.Name != "v1.0" {
		t.Fatalf("ReadTag = %+v", tag)
	}

	if got, err := s.ReadType(tagHash); err != nil || got != TypeTag {
		t.Fatalf("ReadType(tag) = %q, %v", got, err)
	}
}

func TestStoreReadTypeMismatch(t *testing.T) {
	s := tempStore(t)
	h, err := s.WriteBlob(&Blob{Data: []byte("not a commit")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := s.ReadCommit(h); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("ReadCommit(blob) error = %v, want ErrTypeMismatch", err)
	}
	if _, err := s.ReadTree(h); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("ReadTree(blob) error = %v, want ErrTypeMismatch", err)
	}
}
