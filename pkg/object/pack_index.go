package object

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Layout of an idx v2 file: header, 256-entry fanout, sorted ids, CRC32s,
// 31-bit offsets, 64-bit overflow offsets, pack checksum, index checksum.
const (
	packIndexVersion        = 2
	packIndexHeaderSize     = 8
	packIndexFanoutSize     = 256 * 4
	packIndexLargeOffsetBit = uint32(1 << 31)
)

var packIndexMagic = [4]byte{0xff, 't', 'O', 'c'}

// PackIndexEntry locates one object inside a pack.
type PackIndexEntry struct {
	Hash   Hash
	Offset uint64
	CRC32  uint32
}

type rawIndexEntry struct {
	id [HashSize]byte
	PackIndexEntry
}

// WritePackIndex writes an idx v2 file for entries, which may be in any
// order, and returns the index checksum.
func WritePackIndex(w io.Writer, entries []PackIndexEntry, packChecksum Hash) (Hash, error) {
	rows := make([]rawIndexEntry, len(entries))
	for i, e := range entries {
		raw, err := hashHexToBytes(e.Hash)
		if err != nil {
			return "", fmt.Errorf("pack index entry %d: %w", i, err)
		}
		rows[i].PackIndexEntry = e
		copy(rows[i].id[:], raw)
	}
	slices.SortFunc(rows, func(a, b rawIndexEntry) int {
		return strings.Compare(string(a.Hash), string(b.Hash))
	})
	for i := 1; i < len(rows); i++ {
		if rows[i].Hash == rows[i-1].Hash {
			return "", fmt.Errorf("pack index: duplicate entry %s", rows[i].Hash)
		}
	}
	trailer, err := hashHexToBytes(packChecksum)
	if err != nil {
		return "", fmt.Errorf("pack index: pack checksum: %w", err)
	}

	size := packIndexHeaderSize + packIndexFanoutSize + len(rows)*(HashSize+8) + 2*HashSize
	out := make([]byte, 0, size)
	out = append(out, packIndexMagic[:]...)
	out = binary.BigEndian.AppendUint32(out, packIndexVersion)

	var fanout [256]uint32
	for _, r := range rows {
		fanout[r.id[0]]++
	}
	var total uint32
	for _, n := range fanout {
		total += n
		out = binary.BigEndian.AppendUint32(out, total)
	}

	for _, r := range rows {
		out = append(out, r.id[:]...)
	}
	for _, r := range rows {
		out = binary.BigEndian.AppendUint32(out, r.CRC32)
	}
	var large []uint64
	for _, r := range rows {
		if r.Offset < uint64(packIndexLargeOffsetBit) {
			out = binary.BigEndian.AppendUint32(out, uint32(r.Offset))
			continue
		}
		out = binary.BigEndian.AppendUint32(out, packIndexLargeOffsetBit|uint32(len(large)))
		large = append(large, r.Offset)
	}
	for _, off := range large {
		out = binary.BigEndian.AppendUint64(out, off)
	}

	out = append(out, trailer...)
	sum := sha1.Sum(out)
	out = append(out, sum[:]...)

	if _, err := w.Write(out); err != nil {
		return "", fmt.Errorf("write pack index: %w", err)
	}
	return Hash(hex.EncodeToString(sum[:])), nil
}
