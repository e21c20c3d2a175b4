package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IndexFile is the name of the blob index inside the state directory.
const IndexFile = "index.jsonl"

// Tracker remembers which attachment contents have already been stored.
type Tracker interface {
	// Owner returns the attachment id that first stored hash.
	Owner(hash string) (string, bool)
	// Claim records hash for attachmentID. It reports false when the hash was
	// already claimed by an earlier attachment.
	Claim(hash, attachmentID string) (bool, error)
	Snapshot() Snapshot
}

type Snapshot struct {
	Blobs int
}

type MemoryTracker struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{owners: make(map[string]string)}
}

func (m *MemoryTracker) Owner(hash string) (string, bool) {
	m.mu.RLock()
	id, ok := m.owners[hash]
	m.mu.RUnlock()
	return id, ok
}

func (m *MemoryTracker) Claim(hash, attachmentID string) (bool, error) {
	if hash == "" {
		return false, fmt.Errorf("claim: empty hash")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.owners[hash]; exists {
		return false, nil
	}
	m.owners[hash] = attachmentID
	return true, nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.owners)
	m.mu.RUnlock()
	return Snapshot{Blobs: count}
}

// FileTracker persists claimed hashes so later runs into the same output
// directory reuse blobs already on disk.
type FileTracker struct {
	*MemoryTracker
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Hash         string `json:"hash"`
	AttachmentID string `json:"attachment_id"`
}

func NewFileTracker(stateDir string) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, IndexFile),
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open blob index for append: %w", err)
	}
	tracker.file = file
	tracker.writer = bufio.NewWriterSize(file, 64*1024)

	return tracker, nil
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open blob index: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse blob index line %d: %w", line, err)
		}
		if record.Hash == "" {
			continue
		}

		f.mu.Lock()
		if _, exists := f.owners[record.Hash]; !exists {
			f.owners[record.Hash] = record.AttachmentID
		}
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read blob index: %w", err)
	}

	return nil
}

func (f *FileTracker) Claim(hash, attachmentID string) (bool, error) {
	claimed, err := f.MemoryTracker.Claim(hash, attachmentID)
	if err != nil || !claimed {
		return claimed, err
	}

	data, err := json.Marshal(fileRecord{Hash: hash, AttachmentID: attachmentID})
	if err != nil {
		return false, fmt.Errorf("encode blob index record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return false, fmt.Errorf("write blob index record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return false, fmt.Errorf("write newline: %w", err)
	}

	return true, nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush blob index: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync blob index: %w", err)
	}
	return nil
}

// Close flushes and closes the index file.
func (f *FileTracker) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush blob index: %w", err)
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync blob index: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close blob index: %w", err)
	}

	return firstErr
}
