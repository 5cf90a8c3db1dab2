package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var errPackIndexTruncated = errors.New("pack index: truncated")

// PackIndex is a parsed idx v2 file.
type PackIndex struct {
	fanout  [256]uint32
	entries []PackIndexEntry // sorted by Hash

	PackChecksum  Hash
	IndexChecksum Hash
}

// Len returns the number of objects in the index.
func (idx *PackIndex) Len() int { return len(idx.entries) }

// bucketBounds returns the entry range whose ids start with first.
func (idx *PackIndex) bucketBounds(first byte) (int, int) {
	lo := 0
	if first > 0 {
		lo = int(idx.fanout[first-1])
	}
	return lo, int(idx.fanout[first])
}

// Find looks h up within its fanout bucket.
func (idx *PackIndex) Find(h Hash) (PackIndexEntry, bool) {
	raw, err := hashHexToBytes(h)
	if err != nil {
		return PackIndexEntry{}, false
	}
	lo, hi := idx.bucketBounds(raw[0])
	bucket := idx.entries[lo:hi]
	i, ok := slices.BinarySearchFunc(bucket, h, func(e PackIndexEntry, h Hash) int {
		return strings.Compare(string(e.Hash), string(h))
	})
	if !ok {
		return PackIndexEntry{}, false
	}
	return bucket[i], true
}

// FindPrefix returns up to limit ids starting with the lowercase hex prefix,
// which must be at least two characters long.
func (idx *PackIndex) FindPrefix(prefix string, limit int) []Hash {
	if len(prefix) < 2 || limit <= 0 {
		return nil
	}
	first, err := hex.DecodeString(prefix[:2])
	if err != nil {
		return nil
	}
	lo, hi := idx.bucketBounds(first[0])
	bucket := idx.entries[lo:hi]
	i, _ := slices.BinarySearchFunc(bucket, prefix, func(e PackIndexEntry, p string) int {
		return strings.Compare(string(e.Hash), p)
	})
	var out []Hash
	for _, e := range bucket[i:] {
		if len(out) == limit || !strings.HasPrefix(string(e.Hash), prefix) {
			break
		}
		out = append(out, e.Hash)
	}
	return out
}

type idxCursor struct {
	data []byte
	pos  int
}

func (c *idxCursor) take(n int) ([]byte, error) {
	if n < 0 || len(c.data)-c.pos < n {
		return nil, errPackIndexTruncated
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadPackIndex parses an idx v2 file, verifying its checksum and the
// ordering of its tables.
func ReadPackIndex(data []byte) (*PackIndex, error) {
	if len(data) < packIndexHeaderSize+packIndexFanoutSize+2*HashSize {
		return nil, fmt.Errorf("pack index: %d bytes is too short", len(data))
	}
	body, trailer := data[:len(data)-HashSize], data[len(data)-HashSize:]
	if sum := sha1.Sum(body); !bytes.Equal(sum[:], trailer) {
		return nil, errors.New("pack index: checksum mismatch")
	}
	if [4]byte(body[:4]) != packIndexMagic {
		return nil, fmt.Errorf("pack index: bad signature %q", body[:4])
	}
	if v := binary.BigEndian.Uint32(body[4:8]); v != packIndexVersion {
		return nil, fmt.Errorf("pack index: version %d not supported", v)
	}

	idx := &PackIndex{IndexChecksum: hashFromBytes(trailer)}
	c := idxCursor{data: body, pos: packIndexHeaderSize}
	fanout, _ := c.take(packIndexFanoutSize)
	for i := range idx.fanout {
		idx.fanout[i] = binary.BigEndian.Uint32(fanout[i*4:])
		if i > 0 && idx.fanout[i] < idx.fanout[i-1] {
			return nil, fmt.Errorf("pack index: fanout decreases at %#02x", i)
		}
	}

	n := int(idx.fanout[255])
	names, err := c.take(n * HashSize)
	if err != nil {
		return nil, err
	}
	crcs, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	offsets, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	rest := body[c.pos:]
	if len(rest) < HashSize || (len(rest)-HashSize)%8 != 0 {
		return nil, errPackIndexTruncated
	}
	large := rest[:len(rest)-HashSize]
	idx.PackChecksum = hashFromBytes(rest[len(large):])

	idx.entries = make([]PackIndexEntry, n)
	for i := 0; i < n; i++ {
		name := names[i*HashSize : (i+1)*HashSize]
		if lo, hi := idx.bucketBounds(name[0]); i < lo || i >= hi {
			return nil, fmt.Errorf("pack index: entry %d lies outside its fanout bucket", i)
		}
		e := PackIndexEntry{Hash: hashFromBytes(name), CRC32: binary.BigEndian.Uint32(crcs[i*4:])}
		if i > 0 && e.Hash <= idx.entries[i-1].Hash {
			return nil, fmt.Errorf("pack index: ids out of order at entry %d", i)
		}
		off := binary.BigEndian.Uint32(offsets[i*4:])
		if off&packIndexLargeOffsetBit == 0 {
			e.Offset = uint64(off)
		} else {
			slot := int(off &^ packIndexLargeOffsetBit)
			if (slot+1)*8 > len(large) {
				return nil, fmt.Errorf("pack index: entry %d refers to missing large offset %d", i, slot)
			}
			e.Offset = binary.BigEndian.Uint64(large[slot*8:])
		}
		idx.entries[i] = e
	}
	return idx, nil
}
