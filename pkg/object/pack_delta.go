package object

import (
	"errors"
	"fmt"
)

// ErrBadDelta is returned for a delta stream that cannot be applied to its
// base object.
var ErrBadDelta = errors.New("malformed delta")

// maxDeltaInsert is the largest literal a single insert opcode carries.
const maxDeltaInsert = 0x7f

// deltaCursor reads a delta stream front to back.
type deltaCursor struct {
	buf []byte
	pos int
}

func (c *deltaCursor) done() bool { return c.pos >= len(c.buf) }

func (c *deltaCursor) next(what string) (byte, error) {
	if c.done() {
		return 0, fmt.Errorf("%w: truncated %s", ErrBadDelta, what)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// size reads a little-endian base-128 length from the delta header.
func (c *deltaCursor) size(what string) (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			return 0, fmt.Errorf("%w: %s overflows", ErrBadDelta, what)
		}
		b, err := c.next(what)
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (c *deltaCursor) take(n int) ([]byte, error) {
	if n > len(c.buf)-c.pos {
		return nil, fmt.Errorf("%w: insert of %d bytes runs past the end", ErrBadDelta, n)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// copyArgs decodes the offset and length that follow a copy opcode. Bits
// 0-3 of op select which offset bytes are present, bits 4-6 the length
// bytes; a zero length means 64 KiB.
func (c *deltaCursor) copyArgs(op byte) (offset, length uint64, err error) {
	for i := uint(0); i < 7; i++ {
		if op&(1<<i) == 0 {
			continue
		}
		b, err := c.next("copy argument")
		if err != nil {
			return 0, 0, err
		}
		if i < 4 {
			offset |= uint64(b) << (8 * i)
		} else {
			length |= uint64(b) << (8 * (i - 4))
		}
	}
	if length == 0 {
		length = 0x10000
	}
	return offset, length, nil
}

// applyDelta rebuilds an object from its base and a Git delta stream.
func applyDelta(base, delta []byte) ([]byte, error) {
	c := &deltaCursor{buf: delta}

	baseSize, err := c.size("base size")
	if err != nil {
		return nil, err
	}
	if baseSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: base is %d bytes, delta expects %d", ErrBadDelta, len(base), baseSize)
	}
	resultSize, err := c.size("result size")
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, resultSize)
	for !c.done() {
		op, _ := c.next("opcode")
		switch {
		case op&0x80 != 0:
			offset, length, err := c.copyArgs(op)
			if err != nil {
				return nil, err
			}
			if offset+length > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy [%d, %d) outside a %d byte base", ErrBadDelta, offset, offset+length, len(base))
			}
			out = append(out, base[offset:offset+length]...)
		case op == 0:
			return nil, fmt.Errorf("%w: reserved opcode 0", ErrBadDelta)
		default:
			lit, err := c.take(int(op))
			if err != nil {
				return nil, err
			}
			out = append(out, lit...)
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("%w: produced %d bytes, header says %d", ErrBadDelta, len(out), resultSize)
	}
	return out, nil
}

// appendDeltaSize appends v in the delta header length encoding.
func appendDeltaSize(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// buildInsertOnlyDelta encodes target as a delta against base made only of
// literal inserts.
func buildInsertOnlyDelta(base, target []byte) []byte {
	out := make([]byte, 0, len(target)+len(target)/maxDeltaInsert+20)
	out = appendDeltaSize(out, uint64(len(base)))
	out = appendDeltaSize(out, uint64(len(target)))
	for len(target) > 0 {
		n := min(len(target), maxDeltaInsert)
		out = append(out, byte(n))
		out = append(out, target[:n]...)
		target = target[n:]
	}
	return out
}

// encodeOfsDeltaDistance encodes the backward distance from an OFS_DELTA
// entry to its base. Each continuation byte stores one less than its value
// so that every distance has a single encoding.
func encodeOfsDeltaDistance(distance uint64) []byte {
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(distance & 0x7f)
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		i--
		buf[i] = byte(distance&0x7f) | 0x80
	}
	return append([]byte(nil), buf[i:]...)
}

// decodeOfsDeltaDistance is the inverse of encodeOfsDeltaDistance. It
// returns the distance and the number of bytes consumed.
func decodeOfsDeltaDistance(data []byte) (uint64, int, error) {
	var distance uint64
	for i, b := range data {
		if i > 0 {
			distance++
		}
		if i >= 9 {
			return 0, 0, fmt.Errorf("%w: ofs-delta distance overflows", ErrBadDelta)
		}
		distance = distance<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return distance, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: ofs-delta distance truncated", ErrBadDelta)
}
