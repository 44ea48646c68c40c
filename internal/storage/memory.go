package storage

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// MemoryArchive keeps objects in process. Used when no S3 endpoint is
// configured and in tests.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string]object)}
}

func (m *MemoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	m.objects[key] = object{data: cp, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryArchive) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return o.data, o.contentType, nil
}

func (m *MemoryArchive) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
