package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj in Git's binary tree format. Each entry is
//
//	<mode> SP <name> NUL <20-byte id>
//
// and entries are sorted the way Git sorts them: byte order, with
// directory names compared as if they ended in "/".
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		if e.Name == "" || strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("marshal tree: invalid entry name %q", e.Name)
		}
		raw, err := hashHexToBytes(e.Hash)
		if err != nil {
			return nil, fmt.Errorf("marshal tree: entry %q: %w", e.Name, err)
		}
		mode := e.Mode
		if mode == "" {
			mode = TreeModeFile
		}
		buf.WriteString(mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

func treeSortKey(e TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// UnmarshalTree parses a TreeObj from Git's binary tree format.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry mode")
		}
		mode := string(data[:sp])
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul <= 0 {
			return nil, fmt.Errorf("unmarshal tree: malformed entry name")
		}
		name := string(data[:nul])
		data = data[nul+1:]

		if len(data) < HashSize {
			return nil, fmt.Errorf("unmarshal tree: truncated id for %q", name)
		}
		tr.Entries = append(tr.Entries, TreeEntry{
			Name: name,
			Mode: normalizeTreeMode(mode),
			Hash: hashFromBytes(data[:HashSize]),
		})
		data = data[HashSize:]
	}
	return tr, nil
}

// normalizeTreeMode maps the zero-padded directory mode some tools write to
// the canonical form.
func normalizeTreeMode(mode string) string {
	if mode == "040000" {
		return TreeModeDir
	}
	return mode
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj in Git's canonical commit format:
//
//	tree H
//	parent H            (zero or more)
//	author A T Z
//	committer C T Z
//	<extra headers>
//	gpgsig S            (optional, continuation lines prefixed by a space)
//
//	message
func MarshalCommit(c *CommitObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s %d %s\n", c.Author, c.Timestamp, timezoneOrUTC(c.AuthorTimezone))

	committer, committerTS, committerTZ := c.Committer, c.CommitterTimestamp, c.CommitterTimezone
	if committer == "" {
		committer, committerTS, committerTZ = c.Author, c.Timestamp, c.AuthorTimezone
	}
	fmt.Fprintf(&buf, "committer %s %d %s\n", committer, committerTS, timezoneOrUTC(committerTZ))

	for _, h := range c.ExtraHeaders {
		writeHeader(&buf, h.Key, h.Value)
	}
	if strings.TrimSpace(c.Signature) != "" {
		writeHeader(&buf, "gpgsig", c.Signature)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(strings.ReplaceAll(value, "\n", "\n "))
	buf.WriteByte('\n')
}

func timezoneOrUTC(tz string) string {
	if strings.TrimSpace(tz) == "" {
		return "+0000"
	}
	return tz
}

// UnmarshalCommit parses a CommitObj from Git's canonical commit format.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}

	c := &CommitObj{Message: message}
	var sawTree bool
	for _, h := range headers {
		switch h.Key {
		case "tree":
			th, err := ParseHash(h.Value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: tree: %w", err)
			}
			c.TreeHash = th
			sawTree = true
		case "parent":
			ph, err := ParseHash(h.Value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: parent: %w", err)
			}
			c.Parents = append(c.Parents, ph)
		case "author":
			ident, ts, tz, err := parseIdentLine(h.Value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: author: %w", err)
			}
			c.Author, c.Timestamp, c.AuthorTimezone = ident, ts, tz
		case "committer":
			ident, ts, tz, err := parseIdentLine(h.Value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal commit: committer: %w", err)
			}
			c.Committer, c.CommitterTimestamp, c.CommitterTimezone = ident, ts, tz
		case "gpgsig":
			c.Signature = h.Value
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, h)
		}
	}
	if !sawTree {
		return nil, fmt.Errorf("unmarshal commit: missing tree header")
	}
	return c, nil
}

// parseIdentLine splits "Name <email> 1700000000 +0100" into its identity,
// timestamp and timezone parts. A missing or malformed date yields zero.
func parseIdentLine(v string) (string, int64, string, error) {
	gt := strings.LastIndexByte(v, '>')
	if gt < 0 {
		return "", 0, "", fmt.Errorf("malformed identity %q", v)
	}
	ident := v[:gt+1]
	fields := strings.Fields(v[gt+1:])
	if len(fields) == 0 {
		return ident, 0, "", nil
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ident, 0, "", nil
	}
	tz := ""
	if len(fields) > 1 {
		tz = fields[1]
	}
	return ident, ts, tz, nil
}

// splitHeaders parses the header block that precedes the first blank line.
// Lines starting with a space continue the previous header's value.
func splitHeaders(data []byte) ([]CommitHeader, string, error) {
	var headerBlock, message string
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		headerBlock = string(data[:idx])
		message = string(data[idx+2:])
	} else {
		headerBlock = strings.TrimSuffix(string(data), "\n")
	}

	var headers []CommitHeader
	for _, line := range strings.Split(headerBlock, "\n") {
		if strings.HasPrefix(line, " ") {
			if len(headers) == 0 {
				return nil, "", fmt.Errorf("continuation line without header")
			}
			last := &headers[len(headers)-1]
			last.Value += "\n" + line[1:]
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, "", fmt.Errorf("malformed header line %q", line)
		}
		headers = append(headers, CommitHeader{Key: key, Value: val})
	}
	return headers, message, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag:
//
//	object H
//	type T
//	tag N
//	tagger I    (optional)
//
//	message
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetHash)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if strings.TrimSpace(t.Tagger) != "" {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses an annotated tag object.
func UnmarshalTag(data []byte) (*TagObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal tag: %w", err)
	}

	t := &TagObj{Message: message}
	for _, h := range headers {
		switch h.Key {
		case "object":
			target, err := ParseHash(h.Value)
			if err != nil {
				return nil, fmt.Errorf("unmarshal tag: object: %w", err)
			}
			t.TargetHash = target
		case "type":
			t.TargetType = ObjectType(h.Value)
		case "tag":
			t.Name = h.Value
		case "tagger":
			t.Tagger = h.Value
		}
	}
	if t.TargetHash == "" {
		return nil, fmt.Errorf("unmarshal tag: missing object header")
	}
	switch t.TargetType {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
	default:
		return nil, fmt.Errorf("unmarshal tag: unknown target type %q", t.TargetType)
	}
	return t, nil
}
