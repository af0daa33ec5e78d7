package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSessionStore persists sessions to a JSON file next to the content
// store, surviving process restarts without an external service. Tokens are
// written hashed.
type FileSessionStore struct {
	path     string
	mu       sync.Mutex
	sessions map[string]SessionRecord
}

// NewFileSessionStore opens or creates the session file at path.
func NewFileSessionStore(path string) (*FileSessionStore, error) {
	if path == "" {
		return nil, fmt.Errorf("session file path required")
	}
	store := &FileSessionStore{path: path, sessions: make(map[string]SessionRecord)}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileSessionStore) load() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read session file: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	var records []SessionRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return fmt.Errorf("decode session file: %w", err)
	}
	for _, record := range records {
		s.sessions[record.Token] = record
	}
	return nil
}

// persist assumes the caller holds the mutex.
func (s *FileSessionStore) persist() error {
	records := make([]SessionRecord, 0, len(s.sessions))
	for _, record := range s.sessions {
		records = append(records, record)
	}
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Save records the session, keyed by the hashed token.
func (s *FileSessionStore) Save(record SessionRecord) error {
	hashed, err := hashSessionToken(record.Token)
	if err != nil {
		return err
	}
	record.Token = hashed
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.sessions[hashed]
	s.sessions[hashed] = record
	if err := s.persist(); err != nil {
		if existed {
			s.sessions[hashed] = previous
		} else {
			delete(s.sessions, hashed)
		}
		return err
	}
	return nil
}

// Get retrieves the session for the plaintext token.
func (s *FileSessionStore) Get(token string) (SessionRecord, bool, error) {
	hashed, err := hashSessionToken(token)
	if err != nil {
		return SessionRecord{}, false, nil
	}
	s.mu.Lock()
	record, ok := s.sessions[hashed]
	s.mu.Unlock()
	return record, ok, nil
}

// Delete removes the session for the plaintext token.
func (s *FileSessionStore) Delete(token string) error {
	hashed, err := hashSessionToken(token)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, existed := s.sessions[hashed]
	if !existed {
		return nil
	}
	delete(s.sessions, hashed)
	if err := s.persist(); err != nil {
		s.sessions[hashed] = previous
		return err
	}
	return nil
}

// PurgeExpired removes lapsed sessions and rewrites the file when any were
// removed.
func (s *FileSessionStore) PurgeExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := false
	for token, record := range s.sessions {
		if record.Expired(now) {
			delete(s.sessions, token)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.persist()
}

// Ping reports whether the session file's directory remains writable.
func (s *FileSessionStore) Ping(context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session dir %s is not a directory", dir)
	}
	return nil
}
