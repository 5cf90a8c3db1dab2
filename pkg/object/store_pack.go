package object

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type packOffsetKey struct {
	pack   string
	offset uint64
}

// packFile pairs a parsed idx with its pack, whose bytes are read on first
// use.
type packFile struct {
	name     string
	packPath string
	idx      *PackIndex

	once    sync.Once
	data    []byte
	loadErr error
}

func (p *packFile) load() ([]byte, error) {
	p.once.Do(func() {
		data, err := os.ReadFile(p.packPath)
		if err != nil {
			p.loadErr = fmt.Errorf("read pack %s: %w", p.name, err)
			return
		}
		if len(data) < packHeaderSize+HashSize {
			p.loadErr = fmt.Errorf("pack %s too short: %d", p.name, len(data))
			return
		}
		header, err := UnmarshalPackHeader(data[:packHeaderSize])
		if err != nil {
			p.loadErr = fmt.Errorf("pack %s: %w", p.name, err)
			return
		}
		if int(header.NumObjects) != p.idx.Len() {
			p.loadErr = fmt.Errorf("pack %s: object count %d does not match index count %d", p.name, header.NumObjects, p.idx.Len())
			return
		}
		if trailer := hashFromBytes(data[len(data)-HashSize:]); trailer != p.idx.PackChecksum {
			p.loadErr = fmt.Errorf("pack %s: checksum mismatch between idx (%s) and pack (%s)", p.name, p.idx.PackChecksum, trailer)
			return
		}
		p.data = data
	})
	return p.data, p.loadErr
}

// loadPacks parses every pack index once. Indexes that cannot be read are
// skipped with a warning; their objects are then reported as missing.
func (s *Store) loadPacks() []*packFile {
	s.packsOnce.Do(func() {
		idxPaths, err := s.listPackIndexPaths()
		if err != nil {
			s.log.Warn("list pack indexes", zap.Error(err))
			return
		}
		for _, idxPath := range idxPaths {
			idxData, err := os.ReadFile(idxPath)
			if err != nil {
				s.log.Warn("skipping unreadable pack index", zap.String("index", filepath.Base(idxPath)), zap.Error(err))
				continue
			}
			idx, err := ReadPackIndex(idxData)
			if err != nil {
				s.log.Warn("skipping malformed pack index", zap.String("index", filepath.Base(idxPath)), zap.Error(err))
				continue
			}
			packPath := packPathForIndex(idxPath)
			s.packs = append(s.packs, &packFile{
				name:     strings.TrimSuffix(filepath.Base(idxPath), ".idx"),
				packPath: packPath,
				idx:      idx,
			})
			s.log.Debug("loaded pack index", zap.String("index", filepath.Base(idxPath)), zap.Int("objects", idx.Len()))
		}
	})
	return s.packs
}

// readFromPacks looks h up in every pack. found is false when no index
// lists the object.
func (s *Store) readFromPacks(h Hash) (ObjectType, []byte, bool, error) {
	for _, p := range s.loadPacks() {
		entry, ok := p.idx.Find(h)
		if !ok {
			continue
		}
		objType, data, err := s.readPacked(p, entry.Offset, 0)
		if err != nil {
			return "", nil, true, fmt.Errorf("object read %s: %w", h, err)
		}
		// Delta resolution bugs and bit rot both surface here.
		if computed := HashObject(objType, data); computed != h {
			return "", nil, true, fmt.Errorf("object read %s: packed object hash mismatch (computed %s)", h, computed)
		}
		return objType, data, true, nil
	}
	return "", nil, false, nil
}

func (s *Store) readPacked(p *packFile, offset uint64, depth int) (ObjectType, []byte, error) {
	key := packOffsetKey{pack: p.name, offset: offset}
	if obj, ok := s.deltaBases.Get(key); ok {
		return obj.objType, obj.data, nil
	}
	if depth > s.maxDeltaDepth {
		return "", nil, fmt.Errorf("pack %s: delta chain deeper than %d", p.name, s.maxDeltaDepth)
	}

	data, err := p.load()
	if err != nil {
		return "", nil, err
	}
	hdr, err := readPackEntryHeader(data[:len(data)-HashSize], offset)
	if err != nil {
		return "", nil, fmt.Errorf("pack %s: %w", p.name, err)
	}
	payload, err := inflatePackPayload(data[hdr.dataOffset:len(data)-HashSize], hdr.size)
	if err != nil {
		return "", nil, fmt.Errorf("pack %s entry at %d: %w", p.name, offset, err)
	}

	var (
		objType ObjectType
		content []byte
	)
	switch hdr.typ {
	case PackOfsDelta, PackRefDelta:
		var baseData []byte
		objType, baseData, err = s.readDeltaBase(p, hdr, depth)
		if err != nil {
			return "", nil, err
		}
		content, err = applyDelta(baseData, payload)
		if err != nil {
			return "", nil, fmt.Errorf("pack %s entry at %d: apply delta: %w", p.name, offset, err)
		}
	default:
		objType, _ = packObjectTypeToObjectType(hdr.typ)
		content = payload
	}

	s.deltaBases.Add(key, rawObject{objType: objType, data: content})
	return objType, content, nil
}

func (s *Store) readDeltaBase(p *packFile, hdr packEntryHeader, depth int) (ObjectType, []byte, error) {
	if hdr.typ == PackOfsDelta {
		return s.readPacked(p, hdr.baseOffset, depth+1)
	}
	if entry, ok := p.idx.Find(hdr.baseHash); ok {
		return s.readPacked(p, entry.Offset, depth+1)
	}
	objType, data, err := s.Read(hdr.baseHash)
	if err != nil {
		return "", nil, fmt.Errorf("pack %s: ref-delta base: %w", p.name, err)
	}
	return objType, data, nil
}

func (s *Store) listPackIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.root, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

// listLooseWithPrefix returns loose object ids starting with prefix, which
// must be at least two characters long.
func (s *Store) listLooseWithPrefix(prefix string) ([]Hash, error) {
	fanout := prefix[:2]
	entries, err := os.ReadDir(filepath.Join(s.root, "objects", fanout))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects fanout %s: %w", fanout, err)
	}

	var hashes []Hash
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		suffix := entry.Name()
		if !isHexHashComponent(suffix, HashHexSize-2) {
			continue
		}
		h := Hash(fanout + suffix)
		if strings.HasPrefix(string(h), prefix) {
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

func isHexHashComponent(s string, expectedLen int) bool {
	if len(s) != expectedLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
