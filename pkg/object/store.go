package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"
)

const (
	defaultCacheSize     = 4096
	defaultDeltaCacheLen = 256
	defaultMaxDeltaDepth = 50
)

// Store is a Git object database rooted at a git directory. Loose objects
// live under objects/ab/cdef0123... as zlib-compressed envelopes; packed
// objects live under objects/pack as idx v2 + pack pairs.
type Store struct {
	root string
	log  *zap.Logger

	cacheSize     int
	maxDeltaDepth int

	objects    *lru.Cache[Hash, rawObject]
	deltaBases *lru.Cache[packOffsetKey, rawObject]

	packsOnce sync.Once
	packs     []*packFile
}

type rawObject struct {
	objType ObjectType
	data    []byte
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCacheSize sets how many decoded objects the store keeps in memory.
func WithCacheSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithMaxDeltaDepth bounds the delta chain length followed for one packed
// object.
func WithMaxDeltaDepth(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxDeltaDepth = n
		}
	}
}

// WithLogger sets the logger used for pack loading diagnostics.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore creates a Store rooted at the given git directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{
		root:          root,
		log:           zap.NewNop(),
		cacheSize:     defaultCacheSize,
		maxDeltaDepth: defaultMaxDeltaDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	// lru.New only fails for non-positive sizes, which the options reject.
	s.objects, _ = lru.New[Hash, rawObject](s.cacheSize)
	s.deltaBases, _ = lru.New[packOffsetKey, rawObject](defaultDeltaCacheLen)
	return s
}

// Root returns the git directory the store reads from.
func (s *Store) Root() string { return s.root }

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	if len(h) != HashHexSize {
		return false
	}
	if s.objects.Contains(h) {
		return true
	}
	if _, err := os.Stat(s.objectPath(h)); err == nil {
		return true
	}
	for _, p := range s.loadPacks() {
		if _, ok := p.idx.Find(h); ok {
			return true
		}
	}
	return false
}

// Write stores an object as a loose object and returns its id. Writes are
// atomic: data is written to a temp file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(envelopeHeader(objType, len(data))); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	// Atomic write via temp + rename.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
// Loose objects take precedence over packed copies. The returned bytes are
// the caller's own.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if len(h) != HashHexSize {
		return "", nil, fmt.Errorf("object read %q: %w", h, ErrNotFound)
	}
	if obj, ok := s.objects.Get(h); ok {
		return obj.objType, bytes.Clone(obj.data), nil
	}

	objType, data, err := s.readLoose(h)
	if errors.Is(err, os.ErrNotExist) {
		var found bool
		objType, data, found, err = s.readFromPacks(h)
		if err == nil && !found {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
	}
	if err != nil {
		return "", nil, err
	}

	s.objects.Add(h, rawObject{objType: objType, data: data})
	return objType, bytes.Clone(data), nil
}

func (s *Store) readLoose(h Hash) (ObjectType, []byte, error) {
	compressed, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		return "", nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: zlib: %w", h, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, err)
	}
	if err := zr.Close(); err != nil {
		return "", nil, fmt.Errorf("object read %s: decompress: %w", h, err)
	}
	return parseObjectEnvelope(raw, h)
}

// parseObjectEnvelope splits "type len\0content" and validates the length.
func parseObjectEnvelope(raw []byte, h Hash) (ObjectType, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("object read %s: invalid format (no NUL)", h)
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("object read %s: invalid header %q", h, header)
	}
	objType := ObjectType(parts[0])
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: invalid length %q: %w", h, parts[1], err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("object read %s: length mismatch (header=%d, actual=%d)", h, length, len(content))
	}
	return objType, content, nil
}

// ReadType returns only the type of the object named by h.
func (s *Store) ReadType(h Hash) (ObjectType, error) {
	objType, _, err := s.Read(h)
	return objType, err
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: %w: got %q, want %q", h, ErrTypeMismatch, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	return UnmarshalTree(data)
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return c, nil
}

// WriteTag serializes and stores an annotated TagObj.
func (s *Store) WriteTag(t *TagObj) (Hash, error) {
	return s.Write(TypeTag, MarshalTag(t))
}

// ReadTag reads and deserializes an annotated TagObj.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := s.readTyped(h, TypeTag)
	if err != nil {
		return nil, err
	}
	t, err := UnmarshalTag(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return t, nil
}
