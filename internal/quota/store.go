package quota

import (
	"context"
	"sync"
)

// Store persists per-device quota state. Load returns the zero State for an
// unknown device.
type Store interface {
	Load(ctx context.Context, deviceID string) (State, error)
	Save(ctx context.Context, deviceID string, s State) error
}

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Load(ctx context.Context, deviceID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[deviceID], nil
}

func (m *MemoryStore) Save(ctx context.Context, deviceID string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[deviceID] = s
	return nil
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
