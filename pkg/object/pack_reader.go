package object

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// packEntryHeader locates one entry inside a pack stream.
type packEntryHeader struct {
	typ        PackObjectType
	size       uint64
	dataOffset uint64
	baseOffset uint64 // OFS_DELTA only
	baseHash   Hash   // REF_DELTA only
}

// readPackEntryHeader decodes the entry header at offset, including the delta
// base reference for OFS_DELTA and REF_DELTA entries.
func readPackEntryHeader(data []byte, offset uint64) (packEntryHeader, error) {
	if offset < packHeaderSize || offset >= uint64(len(data)) {
		return packEntryHeader{}, fmt.Errorf("entry offset %d out of range", offset)
	}

	objType, size, n, err := decodePackEntryHeaderStrict(data[offset:])
	if err != nil {
		return packEntryHeader{}, fmt.Errorf("entry at %d: %w", offset, err)
	}
	hdr := packEntryHeader{typ: objType, size: size}
	pos := offset + uint64(n)

	switch objType {
	case PackCommit, PackTree, PackBlob, PackTag:
	case PackOfsDelta:
		if pos >= uint64(len(data)) {
			return packEntryHeader{}, fmt.Errorf("entry at %d: ofs-delta distance truncated", offset)
		}
		distance, m, err := decodeOfsDeltaDistance(data[pos:])
		if err != nil {
			return packEntryHeader{}, fmt.Errorf("entry at %d: %w", offset, err)
		}
		if distance == 0 || distance > offset {
			return packEntryHeader{}, fmt.Errorf("entry at %d: invalid ofs-delta distance %d", offset, distance)
		}
		hdr.baseOffset = offset - distance
		pos += uint64(m)
	case PackRefDelta:
		if pos+HashSize > uint64(len(data)) {
			return packEntryHeader{}, fmt.Errorf("entry at %d: ref-delta base truncated", offset)
		}
		hdr.baseHash = hashFromBytes(data[pos : pos+HashSize])
		pos += HashSize
	default:
		return packEntryHeader{}, fmt.Errorf("entry at %d: unsupported packed object type %d", offset, objType)
	}

	hdr.dataOffset = pos
	return hdr, nil
}

// inflatePackPayload decompresses one zlib stream and checks it against the
// size recorded in the entry header.
func inflatePackPayload(compressed []byte, size uint64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := io.Copy(&buf, io.LimitReader(zr, int64(size)+1)); err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if uint64(buf.Len()) != size {
		return nil, fmt.Errorf("size mismatch header=%d decoded=%d", size, buf.Len())
	}
	return buf.Bytes(), nil
}

func decodePackEntryHeaderStrict(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		if shift > 57 {
			return 0, 0, 0, fmt.Errorf("entry header size overflow")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return objType, size, consumed, nil
}
