// Package eventlog reads and writes the structured experiment event log:
// one JSON object per line, optionally gzip (.gz) or zstd (.zst) compressed.
package eventlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// maxLineSize bounds a single event line.
const maxLineSize = 1 << 20

// FileSource implements types.StructuredLogSource over an event log file.
type FileSource struct {
	path   string
	parser fastjson.ParserPool
}

// NewFileSource returns a source reading path. The file need not exist yet.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FetchRecent returns the most recent limit entries recorded for ownerID,
// oldest first. A missing file yields no entries.
func (s *FileSource) FetchRecent(ctx context.Context, ownerID string, limit int) ([]types.LogEntry, error) {
	timer := logging.StartTimer(logging.CategoryEventLog, "FetchRecent")
	defer timer.Stop()

	if limit <= 0 || ownerID == "" {
		return nil, nil
	}

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		logging.EventLogDebug("Event log %s does not exist; no entries", s.path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	r, closeReader, err := decompress(s.path, f)
	if err != nil {
		return nil, err
	}
	defer closeReader()

	p := s.parser.Get()
	defer s.parser.Put(p)

	var entries []types.LogEntry
	skipped := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		v, err := p.ParseBytes(line)
		if err != nil || v.Type() != fastjson.TypeObject {
			skipped++
			continue
		}
		if ownerOf(v) != ownerID {
			continue
		}
		entries = append(entries, types.LogEntry{
			Kind:      string(v.GetStringBytes("type")),
			Timestamp: string(v.GetStringBytes("timestamp")),
			Content:   string(v.GetStringBytes("content")),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	if skipped > 0 {
		logging.EventLogWarn("Skipped %d malformed lines in %s", skipped, s.path)
	}

	// ISO-8601 timestamps order lexically; stable keeps file order for ties.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	logging.EventLogDebug("FetchRecent owner=%s returned %d entries", ownerID, len(entries))
	return entries, nil
}

// ownerOf reads user_id, which older recorders wrote as a number.
func ownerOf(v *fastjson.Value) string {
	u := v.Get("user_id")
	if u == nil {
		return ""
	}
	switch u.Type() {
	case fastjson.TypeString:
		return string(u.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := u.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		return strconv.FormatFloat(u.GetFloat64(), 'f', -1, 64)
	}
	return ""
}

func decompress(path string, f io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return strings.NewReader(""), func() {}, nil
			}
			return nil, nil, fmt.Errorf("open gzip event log: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd event log: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return f, func() {}, nil
	}
}
