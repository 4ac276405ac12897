// Package notes keeps free-form markdown notes per document file name,
// saves them with a debounce, and renders them to HTML or plain text.
package notes

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// KeyPrefix namespaces note keys.
const KeyPrefix = "pdf-notes-"

// Store persists notes by document file name.
type Store interface {
	// Load returns the saved note, or "" when none exists.
	Load(ctx context.Context, name string) (string, error)
	Save(ctx context.Context, name, text string) error
}

// Key returns the storage key for a document file name.
func Key(name string) string { return KeyPrefix + name }

// FileStore keeps one file per note under Dir. File names are the blake2b
// hash of the key, so any document name maps to a safe path.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("notes dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	sum := blake2b.Sum256([]byte(Key(name)))
	return filepath.Join(s.Dir, hex.EncodeToString(sum[:16])+".md")
}

func (s *FileStore) Load(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load notes for %q: %w", name, err)
	}
	return string(data), nil
}

// Save writes through a temporary file and rename.
func (s *FileStore) Save(ctx context.Context, name, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(name)
	tmp, err := os.CreateTemp(s.Dir, ".note-*")
	if err != nil {
		return fmt.Errorf("save notes for %q: %w", name, err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save notes for %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save notes for %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save notes for %q: %w", name, err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	notes map[string]string
	saves int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{notes: make(map[string]string)} }

func (m *MemoryStore) Load(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[Key(name)], nil
}

func (m *MemoryStore) Save(_ context.Context, name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[Key(name)] = text
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
