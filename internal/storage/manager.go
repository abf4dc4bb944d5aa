package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apk-scanner/client/internal/models"
)

// Store holds the current file selection.
type Store interface {
	Save(name string, r io.Reader) (*models.StagedFile, error)
	Get(id string) (*models.StagedFile, error)
	List() []*models.StagedFile
	Delete(id string) error
	Clear() error
	GetFilePath(id string) (string, error)
	Selection() []models.SelectedFile
}

// ErrFileNotFound is returned for an unknown staged file ID.
var ErrFileNotFound = errors.New("staged file not found")

type stagedEntry struct {
	info *models.StagedFile
	seq  uint64
}

// LocalStore stages selected files in a directory on the local filesystem.
type LocalStore struct {
	mu       sync.RWMutex
	stageDir string
	files    map[string]stagedEntry
	seq      uint64
}

// NewLocalStore creates a LocalStore, creating stageDir if needed.
func NewLocalStore(stageDir string) (*LocalStore, error) {
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &LocalStore{
		stageDir: stageDir,
		files:    make(map[string]stagedEntry),
	}, nil
}

// Save stages the content of r under name and appends it to the selection.
func (s *LocalStore) Save(name string, r io.Reader) (*models.StagedFile, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}

	id := uuid.New().String()
	path := filepath.Join(s.stageDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.StagedFile{
		ID:         id,
		Name:       name,
		Size:       size,
		Digest:     models.Digest(hex.EncodeToString(h.Sum(nil))),
		SelectedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.files[id] = stagedEntry{info: info, seq: s.seq}

	return info, nil
}

// Get retrieves staged file metadata by ID.
func (s *LocalStore) Get(id string) (*models.StagedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	copied := *e.info
	return &copied, nil
}

// List returns the staged files in the order they were selected.
func (s *LocalStore) List() []*models.StagedFile {
	entries := s.ordered()
	list := make([]*models.StagedFile, len(entries))
	for i, e := range entries {
		copied := *e.info
		list[i] = &copied
	}
	return list
}

func (s *LocalStore) ordered() []stagedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]stagedEntry, 0, len(s.files))
	for _, e := range s.files {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// Delete removes a file from the selection and from disk.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	path := filepath.Join(s.stageDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Clear empties the selection.
func (s *LocalStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id := range s.files {
		path := filepath.Join(s.stageDir, id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("deleting file: %w", err)
		}
		delete(s.files, id)
	}
	return firstErr
}

// GetFilePath returns the path of a staged file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	return filepath.Join(s.stageDir, id), nil
}

// Selection snapshots the current selection as files to scan. Each entry
// reads its staged copy when opened, so a file removed from disk afterwards
// shows up as unreadable rather than failing the whole batch.
func (s *LocalStore) Selection() []models.SelectedFile {
	entries := s.ordered()
	files := make([]models.SelectedFile, len(entries))
	for i, e := range entries {
		path := filepath.Join(s.stageDir, e.info.ID)
		files[i] = models.SelectedFile{
			Name: e.info.Name,
			Size: e.info.Size,
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		}
	}
	return files
}
