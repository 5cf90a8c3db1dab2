package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	// HashSize is the length of a raw object id.
	HashSize = sha1.Size
	// HashHexSize is the length of a hex-encoded object id.
	HashHexSize = 2 * HashSize
	// MinPrefixLen is the shortest abbreviated id ResolvePrefix accepts.
	MinPrefixLen = 4
)

// ZeroHash is the all-zero id used by reflogs for "no object".
const ZeroHash Hash = "0000000000000000000000000000000000000000"

// HashObject computes the SHA-1 of the envelope "type len\0content", the
// canonical Git object id.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	h.Write(envelopeHeader(objType, len(data)))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

func envelopeHeader(objType ObjectType, size int) []byte {
	return []byte(string(objType) + " " + strconv.Itoa(size) + "\x00")
}

// ParseHash validates a full 40-character hex id. Upper-case input is
// normalized to lower case.
func ParseHash(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != HashHexSize || !isHex(s) {
		return "", fmt.Errorf("invalid object id %q", s)
	}
	return Hash(s), nil
}

// IsHexPrefix reports whether s could name an object by abbreviated id.
func IsHexPrefix(s string) bool {
	return len(s) >= MinPrefixLen && len(s) <= HashHexSize && isHex(s)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// String returns the hex form of the id.
func (h Hash) String() string { return string(h) }

// Short returns the conventional 7-character abbreviation.
func (h Hash) Short() string {
	if len(h) > 7 {
		return string(h[:7])
	}
	return string(h)
}

// IsZero reports whether h is empty or the all-zero id.
func (h Hash) IsZero() bool {
	return h == "" || h == ZeroHash
}

func hashHexToBytes(h Hash) ([]byte, error) {
	if len(h) != HashHexSize {
		return nil, fmt.Errorf("hash length must be %d hex chars, got %d", HashHexSize, len(h))
	}
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", h, err)
	}
	return raw, nil
}

func hashFromBytes(raw []byte) Hash {
	return Hash(hex.EncodeToString(raw))
}
