package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const defaultSessionsFile = "./data/sessions.json"

// FileStore keeps the whole mapping in memory and rewrites a single JSON
// file after every mutation.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	records map[string]Record

	// writeMu serializes full-file writes so two keys cannot interleave
	// temp-file renames.
	writeMu sync.Mutex
}

// NewFileStore creates a FileStore backed by path. Call Load before use.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if path == "" {
		path = defaultSessionsFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:    path,
		logger:  logger.With("component", "sessions.file"),
		records: make(map[string]Record),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the file. A missing file or malformed JSON leaves the store
// empty and is not reported as an error.
func (s *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.replace(make(map[string]Record))
			return nil
		}
		return fmt.Errorf("read sessions file %q: %w", s.path, err)
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("sessions file is corrupt, starting empty", "path", s.path, "error", err)
		s.replace(make(map[string]Record))
		return nil
	}
	if records == nil {
		records = make(map[string]Record)
	}
	s.replace(records)
	s.logger.Debug("sessions loaded", "path", s.path, "count", len(records))
	return nil
}

func (s *FileStore) replace(records map[string]Record) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// Get returns the record for key.
func (s *FileStore) Get(_ context.Context, key Key) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key.String()]
	return rec, ok, nil
}

// Put stores rec and rewrites the full file.
func (s *FileStore) Put(_ context.Context, key Key, rec Record) error {
	s.mu.Lock()
	s.records[key.String()] = rec
	s.mu.Unlock()
	return s.persist()
}

// ResetAll removes the file and clears the in-memory mapping.
func (s *FileStore) ResetAll(_ context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.replace(make(map[string]Record))
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove sessions file %q: %w", s.path, err)
	}
	s.logger.Info("all sessions reset", "path", s.path)
	return nil
}

// All returns a copy of the mapping.
func (s *FileStore) All(_ context.Context) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op; every Put is already on disk.
func (s *FileStore) Close() error { return nil }

// persist writes the mapping to a temp file in the same directory and
// renames it over the target.
func (s *FileStore) persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create sessions dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp sessions file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp sessions file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp sessions file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("chmod temp sessions file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename sessions file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
