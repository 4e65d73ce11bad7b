package filesystem

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// MemoryStore is an in-memory TextStore. Paths are used verbatim as keys.
type MemoryStore struct {
	mu     sync.Mutex
	files  map[string]string
	dirs   map[string]bool
	writes int

	// ReadErr and WriteErr, when set for a path, are returned instead of performing the operation.
	ReadErr  map[string]error
	WriteErr map[string]error
	// DirErr is returned by EnsureDir when set.
	DirErr error
}

// NewMemoryStore returns a store pre-populated with files.
func NewMemoryStore(files map[string]string) *MemoryStore {
	m := &MemoryStore{
		files:    make(map[string]string),
		dirs:     make(map[string]bool),
		ReadErr:  make(map[string]error),
		WriteErr: make(map[string]error),
	}
	for p, c := range files {
		m.files[p] = c
	}
	return m
}

func (m *MemoryStore) ReadTextFile(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ReadErr[p]; err != nil {
		return "", err
	}
	c, ok := m.files[p]
	if !ok {
		return "", fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) WriteTextFile(ctx context.Context, p string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.WriteErr[p]; err != nil {
		return err
	}
	m.files[p] = text
	m.writes++
	return nil
}

func (m *MemoryStore) EnsureDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DirErr != nil {
		return m.DirErr
	}
	for d := path.Clean(dir); d != "." && d != "/" && !m.dirs[d]; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return nil
}

// Content returns the stored content of p.
func (m *MemoryStore) Content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[p]
	return c, ok
}

// Writes returns the number of successful WriteTextFile calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// HasDir reports whether EnsureDir created dir (or one of its descendants).
func (m *MemoryStore) HasDir(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path.Clean(dir)]
}

var _ TextStore = (*MemoryStore)(nil)
