package objstore

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store. The zero value is not usable; use NewMemStore.
//
// CopyHook and WriteHook, when set, run before the operation and abort it
// if they return an error. Tests use them to inject backend failures.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	dirs    map[string]bool
	copies  int
	writes  int

	CopyHook  func(src, dst string) error
	WriteHook func(path string) error
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
}

// Put stores an object directly, bypassing hooks and counters.
func (m *MemStore) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[cleanDir(p)] = append([]byte(nil), data...)
}

// Copies returns the number of successful Copy calls.
func (m *MemStore) Copies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copies
}

// Writes returns the number of successful Write calls.
func (m *MemStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemStore) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanDir(p)
	if _, ok := m.objects[p]; ok {
		return true, nil
	}
	if m.dirs[p] {
		return true, nil
	}
	for k := range m.objects {
		if strings.HasPrefix(k, p+"/") {
			return true, nil
		}
	}
	for d := range m.dirs {
		if strings.HasPrefix(d, p+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) List(_ context.Context, p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = cleanDir(p)
	var out []string
	for k := range m.objects {
		if path.Dir(k) == p {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Read(_ context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[cleanDir(p)]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) Write(_ context.Context, p string, data []byte) error {
	if m.WriteHook != nil {
		if err := m.WriteHook(p); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[cleanDir(p)] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *MemStore) MakeDir(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[cleanDir(p)] = true
	return nil
}

func (m *MemStore) Copy(_ context.Context, src, dst string) error {
	if m.CopyHook != nil {
		if err := m.CopyHook(src, dst); err != nil {
			return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[cleanDir(src)]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, ErrNotFound)
	}
	m.objects[cleanDir(dst)] = append([]byte(nil), data...)
	m.copies++
	return nil
}
