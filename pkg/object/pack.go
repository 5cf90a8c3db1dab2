package object

import (
	"encoding/binary"
	"fmt"
)

// A pack starts with "PACK", a big-endian version and a big-endian object
// count.
const (
	packHeaderSize       = 12
	supportedPackVersion = 2
)

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// PackObjectType is the 3-bit type stored in a pack entry header.
type PackObjectType uint8

const (
	PackCommit   PackObjectType = 1
	PackTree     PackObjectType = 2
	PackBlob     PackObjectType = 3
	PackTag      PackObjectType = 4
	PackOfsDelta PackObjectType = 6
	PackRefDelta PackObjectType = 7
)

var packTypes = map[PackObjectType]ObjectType{
	PackCommit: TypeCommit,
	PackTree:   TypeTree,
	PackBlob:   TypeBlob,
	PackTag:    TypeTag,
}

// packObjectTypeToObjectType reports the object type of a whole-object
// entry. Delta entries have none.
func packObjectTypeToObjectType(t PackObjectType) (ObjectType, bool) {
	ot, ok := packTypes[t]
	return ot, ok
}

// ObjectTypeToPackObjectType returns the entry type used to store objects
// of type t.
func ObjectTypeToPackObjectType(t ObjectType) (PackObjectType, bool) {
	for pt, ot := range packTypes {
		if ot == t {
			return pt, true
		}
	}
	return 0, false
}

// PackHeader is the fixed header at the start of a pack.
type PackHeader struct {
	Version    uint32
	NumObjects uint32
}

// Marshal encodes the header.
func (h PackHeader) Marshal() []byte {
	buf := append(make([]byte, 0, packHeaderSize), packMagic[:]...)
	buf = binary.BigEndian.AppendUint32(buf, h.Version)
	return binary.BigEndian.AppendUint32(buf, h.NumObjects)
}

// UnmarshalPackHeader decodes a version 2 pack header.
func UnmarshalPackHeader(data []byte) (*PackHeader, error) {
	switch {
	case len(data) < packHeaderSize:
		return nil, fmt.Errorf("pack header: %d bytes, want %d", len(data), packHeaderSize)
	case [4]byte(data[:4]) != packMagic:
		return nil, fmt.Errorf("pack header: bad signature %q", data[:4])
	}
	h := &PackHeader{
		Version:    binary.BigEndian.Uint32(data[4:8]),
		NumObjects: binary.BigEndian.Uint32(data[8:12]),
	}
	if h.Version != supportedPackVersion {
		return nil, fmt.Errorf("pack header: version %d not supported", h.Version)
	}
	return h, nil
}

// encodePackEntryHeader encodes an entry's type and inflated size: the
// first byte holds the type and the low 4 size bits, continuation bytes
// carry 7 more bits each.
func encodePackEntryHeader(objType PackObjectType, size uint64) []byte {
	first := byte(objType&0x7)<<4 | byte(size&0x0f)
	size >>= 4
	out := make([]byte, 0, 10)
	for size > 0 {
		out = append(out, first|0x80)
		first = byte(size & 0x7f)
		size >>= 7
	}
	return append(out, first)
}
