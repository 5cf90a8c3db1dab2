package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ErrPackFinished is returned by writes after PackWriter.Finish.
var ErrPackFinished = errors.New("pack writer already finished")

func compressPackPayload(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PackWriter streams a version 2 pack. Deltas it writes are insert-only, so
// it is meant for building fixtures and small packs rather than for
// repacking.
type PackWriter struct {
	out    io.Writer
	sum    hash.Hash
	offset uint64

	want, count uint32
	done        bool
}

// NewPackWriter writes the pack header announcing numObjects entries.
func NewPackWriter(out io.Writer, numObjects uint32) (*PackWriter, error) {
	p := &PackWriter{out: out, sum: sha1.New(), want: numObjects}
	header := PackHeader{Version: supportedPackVersion, NumObjects: numObjects}
	if err := p.write(header.Marshal()); err != nil {
		return nil, fmt.Errorf("write pack header: %w", err)
	}
	return p, nil
}

// CurrentOffset is the offset the next entry will start at.
func (p *PackWriter) CurrentOffset() uint64 {
	return p.offset
}

func (p *PackWriter) write(b []byte) error {
	p.sum.Write(b)
	n, err := p.out.Write(b)
	p.offset += uint64(n)
	return err
}

func (p *PackWriter) begin() error {
	if p.done {
		return ErrPackFinished
	}
	if p.count >= p.want {
		return fmt.Errorf("pack writer: header announced %d objects", p.want)
	}
	return nil
}

// entry writes one entry: the type/size header, the delta base reference
// if any, then the deflated payload.
func (p *PackWriter) entry(kind PackObjectType, base, payload []byte) error {
	z, err := compressPackPayload(payload)
	if err != nil {
		return fmt.Errorf("pack writer: compress: %w", err)
	}
	for _, part := range [][]byte{encodePackEntryHeader(kind, uint64(len(payload))), base, z} {
		if err := p.write(part); err != nil {
			return fmt.Errorf("pack writer: %w", err)
		}
	}
	p.count++
	return nil
}

// WriteEntry appends a whole object.
func (p *PackWriter) WriteEntry(objType PackObjectType, data []byte) error {
	if err := p.begin(); err != nil {
		return err
	}
	return p.entry(objType, nil, data)
}

// WriteOfsDelta appends targetData as a delta against the entry written at
// baseOffset.
func (p *PackWriter) WriteOfsDelta(baseOffset uint64, baseData, targetData []byte) error {
	if err := p.begin(); err != nil {
		return err
	}
	if baseOffset >= p.offset {
		return fmt.Errorf("pack writer: delta base at %d is not before %d", baseOffset, p.offset)
	}
	distance := encodeOfsDeltaDistance(p.offset - baseOffset)
	return p.entry(PackOfsDelta, distance, buildInsertOnlyDelta(baseData, targetData))
}

// WriteRefDelta appends targetData as a delta against the object named base.
func (p *PackWriter) WriteRefDelta(base Hash, baseData, targetData []byte) error {
	if err := p.begin(); err != nil {
		return err
	}
	raw, err := hashHexToBytes(base)
	if err != nil {
		return fmt.Errorf("pack writer: delta base: %w", err)
	}
	return p.entry(PackRefDelta, raw, buildInsertOnlyDelta(baseData, targetData))
}

// Finish writes the trailing SHA-1 over everything before it and returns
// it. Every announced object must have been written.
func (p *PackWriter) Finish() (Hash, error) {
	if p.done {
		return "", ErrPackFinished
	}
	if p.count != p.want {
		return "", fmt.Errorf("pack writer: wrote %d of %d objects", p.count, p.want)
	}
	sum := p.sum.Sum(nil)
	if _, err := p.out.Write(sum); err != nil {
		return "", fmt.Errorf("write pack trailer: %w", err)
	}
	p.done = true
	return Hash(hex.EncodeToString(sum)), nil
}
