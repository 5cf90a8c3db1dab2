package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/revlist/pkg/object"
)

// ReflogEntry is one line of a reflog:
//
//	<old> <new> <identity> <unix-time> <tz>\t<message>
type ReflogEntry struct {
	Ref       string
	OldHash   object.Hash
	NewHash   object.Hash
	Identity  string
	Timestamp int64
	Timezone  string
	Message   string
}

func (r *Repo) appendReflog(ref string, oldHash, newHash object.Hash, message string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		message = "update"
	}
	// Reflog messages are single-line.
	message = strings.ReplaceAll(message, "\n", " ")

	logPath := filepath.Join(r.GitDir, "logs", filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}

	if oldHash == "" {
		oldHash = object.ZeroHash
	}
	if newHash == "" {
		newHash = object.ZeroHash
	}
	now := time.Now()
	line := fmt.Sprintf("%s %s %s %d %s\t%s\n",
		oldHash, newHash, r.Config.Identity(), now.Unix(), formatTimezoneOffset(now), message)

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

// ReadReflog returns the reflog of ref, newest first. A short name is taken
// as a branch; "" and "HEAD" read HEAD's own log. A limit <= 0 returns every
// entry. A ref without a reflog yields no entries and no error.
func (r *Repo) ReadReflog(ref string, limit int) ([]ReflogEntry, error) {
	refName := resolveReflogRefName(ref)
	if err := checkRefName(refName); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	logPath := filepath.Join(r.GitDir, "logs", filepath.FromSlash(refName))
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer f.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseReflogLine(scanner.Text())
		if !ok {
			continue
		}
		entry.Ref = refName
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseReflogLine(line string) (ReflogEntry, bool) {
	head, message, _ := strings.Cut(line, "\t")
	if len(head) < 2*object.HashHexSize+2 {
		return ReflogEntry{}, false
	}
	oldHash, err := object.ParseHash(head[:object.HashHexSize])
	if err != nil {
		return ReflogEntry{}, false
	}
	newHash, err := object.ParseHash(head[object.HashHexSize+1 : 2*object.HashHexSize+1])
	if err != nil {
		return ReflogEntry{}, false
	}
	rest := head[2*object.HashHexSize+2:]

	gt := strings.LastIndexByte(rest, '>')
	if gt < 0 {
		return ReflogEntry{}, false
	}
	fields := strings.Fields(rest[gt+1:])
	if len(fields) < 1 {
		return ReflogEntry{}, false
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ReflogEntry{}, false
	}
	tz := ""
	if len(fields) > 1 {
		tz = fields[1]
	}
	return ReflogEntry{
		OldHash:   oldHash,
		NewHash:   newHash,
		Identity:  rest[:gt+1],
		Timestamp: ts,
		Timezone:  tz,
		Message:   message,
	}, true
}

func resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "HEAD"
	}
	if isFullRefName(ref) {
		return ref
	}
	return "refs/heads/" + ref
}
