package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/pageflow/pkg/domain"
)

// Store implements ports.HistoryStore using the local filesystem.
// Each history lives in one JSON file holding its entries and cursor.
type Store struct {
	BasePath string
	Name     string

	mu sync.Mutex
}

type document struct {
	Index   int            `json:"index"`
	Entries []domain.Entry `json:"entries"`
}

// New creates a Store for the history called name under basePath.
// An empty basePath defaults to ".pageflow/history", an empty name to "default".
func New(basePath, name string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".pageflow", "history")
	}
	if name == "" {
		name = "default"
	}
	return &Store{BasePath: basePath, Name: name}
}

func (s *Store) path() string {
	return filepath.Join(s.BasePath, s.Name+".json")
}

// Push appends entry after the current one, dropping forward entries.
func (s *Store) Push(ctx context.Context, entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Entries = append(doc.Entries[:doc.Index+1], entry)
	doc.Index++
	return s.write(doc)
}

// Replace overwrites the current entry, pushing when the history is empty.
func (s *Store) Replace(ctx context.Context, entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc.Index < 0 {
		doc.Entries = []domain.Entry{entry}
		doc.Index = 0
	} else {
		doc.Entries[doc.Index] = entry
	}
	return s.write(doc)
}

// Current returns the current entry.
func (s *Store) Current(ctx context.Context) (domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return domain.Entry{}, err
	}
	if doc.Index < 0 {
		return domain.Entry{}, domain.ErrNoEntry
	}
	return doc.Entries[doc.Index], nil
}

// Entries returns every entry, oldest first.
func (s *Store) Entries(ctx context.Context) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// Clear removes the history file.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history file: %w", err)
	}
	return nil
}

func (s *Store) read() (document, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return document{Index: -1}, nil
		}
		return document{}, fmt.Errorf("failed to read history file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if doc.Index >= len(doc.Entries) {
		return document{}, fmt.Errorf("corrupt history %s: index %d of %d entries", s.Name, doc.Index, len(doc.Entries))
	}
	return doc, nil
}

// write persists doc atomically: temp file, fsync, rename.
func (s *Store) write(doc document) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure history directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+s.Name+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	destPath := s.path()
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing history file: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
