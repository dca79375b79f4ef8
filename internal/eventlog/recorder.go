package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"labreport/internal/logging"
	"labreport/internal/types"
)

// record is the on-disk line format.
type record struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// Recorder appends structured entries to an event log file.
// Compressed files get one compressed member per Record call.
type Recorder struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewRecorder returns a recorder appending to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path, now: time.Now}
}

// Record appends one entry for ownerID. An empty Timestamp is set to now.
func (r *Recorder) Record(ownerID string, entry types.LogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = r.now().Format("2006-01-02T15:04:05.000000")
	}
	line, err := json.Marshal(record{UserID: ownerID, Type: entry.Kind, Timestamp: entry.Timestamp, Content: entry.Content})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	w, finish, err := compress(r.path, f)
	if err != nil {
		return err
	}
	if _, err := w.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := finish(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}

	logging.EventLog("Recorded %s event for owner=%s", entry.Kind, ownerID)
	return nil
}

func compress(path string, f io.Writer) (io.Writer, func() error, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zw := gzip.NewWriter(f)
		return zw, zw.Close, nil
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	default:
		return f, func() error { return nil }, nil
	}
}
