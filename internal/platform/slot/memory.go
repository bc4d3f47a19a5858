package slot

import (
	"context"
	"sync"
)

// Memory keeps slot values in process memory. Values do not survive a restart.
type Memory struct {
	mu        sync.RWMutex
	values    map[string][]byte
	snapshots map[string]map[string][]byte
}

// NewMemory returns an empty memory slot.
func NewMemory() *Memory {
	return &Memory{
		values:    make(map[string][]byte),
		snapshots: make(map[string]map[string][]byte),
	}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *Memory) Save(_ context.Context, key string, value []byte) error {
	if err := requireKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Snapshot(_ context.Context, label string) (int, error) {
	if err := requireKey(label); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string][]byte, len(m.values))
	for key, value := range m.values {
		copied[key] = append([]byte(nil), value...)
	}
	m.snapshots[label] = copied
	return len(copied), nil
}

// SnapshotValue returns a value captured under label.
func (m *Memory) SnapshotValue(label, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.snapshots[label][key]
	return value, ok
}
