package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/induction/core/schedule"
)

// JSONLLedger appends ledger entries to a JSONL file with automatic rotation.
type JSONLLedger struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewJSONLLedger creates a ledger rotating at maxSizeMB. Rotated files are
// never pruned or compressed: List reads every one of them.
func NewJSONLLedger(path string, maxSizeMB int) (*JSONLLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSizeMB,
	}
	return &JSONLLedger{logger: lj, path: path}, nil
}

// Append writes the entry and triggers rotation if needed.
func (l *JSONLLedger) Append(_ context.Context, e schedule.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return json.NewEncoder(l.logger).Encode(e)
}

// List reads the current and rotated files, oldest first, and returns the
// entries of one schedule in append order.
func (l *JSONLLedger) List(_ context.Context, scheduleID string) ([]schedule.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var out []schedule.Entry
	for _, f := range files {
		entries, err := readEntries(f, scheduleID)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// files returns rotated backups sorted by their timestamp followed by the
// active file. Backups are named <name>-<timestamp><ext> by lumberjack.
func (l *JSONLLedger) files() ([]string, error) {
	ext := filepath.Ext(l.path)
	backups, err := filepath.Glob(strings.TrimSuffix(l.path, ext) + "-*" + ext)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(l.path); err == nil {
		backups = append(backups, l.path)
	}
	return backups, nil
}

func readEntries(path, scheduleID string) ([]schedule.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []schedule.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var e schedule.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: corrupt ledger entry: %w", path, line, err)
		}
		if e.ScheduleID == scheduleID {
			out = append(out, e)
		}
	}
	return out, scanner.Err()
}

// Close closes the underlying writer.
func (l *JSONLLedger) Close() error {
	return l.logger.Close()
}
