// Package journal is the append-only sync journal. Every phase of a
// sync run writes one JSONL entry, so a run can be reconstructed after
// a crash and audited line by line.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// EntryType defines the phase a journal entry records
type EntryType string

const (
	EntryObserved   EntryType = "observed"
	EntryCorrelated EntryType = "correlated"
	EntryAggregated EntryType = "aggregated"
	EntryPersisted  EntryType = "persisted"
	EntryFinalized  EntryType = "finalized"
	EntryFailed     EntryType = "failed"
)

// Entry is a single journal line
type Entry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Sequence     int64           `json:"sequence"`
	Type         EntryType       `json:"type"`
	ConnectionID string          `json:"connection_id"`
	SnapshotID   string          `json:"snapshot_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Journal appends sync phase entries to a per-process JSONL file
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal in the specified directory. A new
// file per open keeps rotation trivial; sequences continue across
// files.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filename := fmt.Sprintf("kirjuri-%s.journal", time.Now().Format("20060102-150405"))
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j := &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
	}
	j.sequence = lastSequence(dir)

	return j, nil
}

// Close flushes and closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Append adds a phase entry for one sync run
func (j *Journal) Append(entryType EntryType, connectionID, snapshotID string, data interface{}) error {
	return j.append(entryType, connectionID, snapshotID, data, nil)
}

// AppendError adds a phase entry carrying the failure that ended it
func (j *Journal) AppendError(entryType EntryType, connectionID, snapshotID string, data interface{}, cause error) error {
	return j.append(entryType, connectionID, snapshotID, data, cause)
}

func (j *Journal) append(entryType EntryType, connectionID, snapshotID string, data interface{}, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++

	entry := Entry{
		Timestamp:    time.Now().UTC(),
		Sequence:     j.sequence,
		Type:         entryType,
		ConnectionID: connectionID,
		SnapshotID:   snapshotID,
	}
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
		entry.Data = jsonData
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	return j.writeEntry(entry)
}

// writeEntry writes one line and syncs it to disk before returning
func (j *Journal) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return j.file.Sync()
}

// lastSequence scans existing journal files for the highest sequence
// so a reopened journal continues where the previous process stopped.
func lastSequence(dir string) int64 {
	files := listFiles(dir)
	var max int64
	for _, file := range files {
		reader, err := NewReader(file)
		if err != nil {
			continue
		}
		for {
			entry, err := reader.Next()
			if err != nil {
				break
			}
			if entry.Sequence > max {
				max = entry.Sequence
			}
		}
		reader.Close()
	}
	return max
}

func listFiles(dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, "kirjuri-*.journal"))
	if err != nil {
		return nil
	}
	sort.Strings(files)
	return files
}

// Reader replays one journal file
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader opens a journal file for replay
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &Reader{
		scanner: bufio.NewScanner(file),
		file:    file,
	}, nil
}

// Next reads the next entry, io.EOF at end of file
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks every entry in the directory in file order and hands
// entries at or after since to the handler.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	for _, file := range listFiles(dir) {
		reader, err := NewReader(file)
		if err != nil {
			return err
		}

		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				reader.Close()
				return err
			}
			if entry.Timestamp.Before(since) {
				continue
			}
			if err := handler(entry); err != nil {
				reader.Close()
				return err
			}
		}
		reader.Close()
	}
	return nil
}
