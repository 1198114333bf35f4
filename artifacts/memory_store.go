package artifacts

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) Put(_ context.Context, storagePath string, content []byte) error {
	cleaned, err := CleanPath(storagePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[cleaned] = append([]byte(nil), content...)
	s.writes++
	return nil
}

func (s *MemoryStore) Get(_ context.Context, storagePath string) ([]byte, error) {
	cleaned, err := CleanPath(storagePath)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.objects[cleaned]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return append([]byte(nil), content...), nil
}

// Paths lists stored paths in lexical order.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.objects))
	for key := range s.objects {
		paths = append(paths, key)
	}
	sort.Strings(paths)
	return paths
}

func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
