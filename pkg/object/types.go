package object

import "errors"

// Hash is a 40-character lowercase hex-encoded SHA-1 object id.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrAmbiguous    = errors.New("ambiguous object id")
	ErrTypeMismatch = errors.New("object type mismatch")
)

const (
	// Tree mode constants in Git's canonical form.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
	TreeModeSymlink    = "120000"
	TreeModeSubmodule  = "160000"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TagObj is an annotated tag. Tagger holds the full identity line value,
// including timestamp and timezone.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     string
	Message    string
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry names a subtree.
func (e TreeEntry) IsDir() bool { return e.Mode == TreeModeDir }

// TreeObj holds the entries of a tree in Git order.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitHeader is a header line the codec does not model explicitly, such as
// "encoding" or "mergetag". Multi-line values keep their embedded newlines.
type CommitHeader struct {
	Key   string
	Value string
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash           Hash
	Parents            []Hash
	Author             string // "Name <email>"
	Timestamp          int64
	AuthorTimezone     string
	Committer          string
	CommitterTimestamp int64
	CommitterTimezone  string
	ExtraHeaders       []CommitHeader
	Signature          string
	Message            string
}

// CommitTime is the timestamp used for time ordering: the committer time,
// falling back to the author time when no committer line was recorded.
func (c *CommitObj) CommitTime() int64 {
	if c.Committer != "" || c.CommitterTimestamp != 0 {
		return c.CommitterTimestamp
	}
	return c.Timestamp
}
