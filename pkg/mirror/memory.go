package mirror

import (
	"context"
	"sync"

	"github.com/guildops/ballast/pkg/resource"
)

// MemoryConnector is an in-process mirror used by tests and local-only
// deployments. It records every push and supports scripted failures.
type MemoryConnector struct {
	mu        sync.Mutex
	connected bool
	tables    map[resource.Key]any
	pushes    []PushRecord

	// FailPushes makes the next N pushes return ErrThrottled
	FailPushes int
}

// PushRecord captures one observed push for assertions
type PushRecord struct {
	Key   resource.Key
	Value any
}

// NewMemoryConnector creates a connected in-memory mirror
func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{
		connected: true,
		tables:    make(map[resource.Key]any),
	}
}

// SetConnected toggles simulated connectivity
func (m *MemoryConnector) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// IsConnected reports simulated connectivity
func (m *MemoryConnector) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Push stores the value as the table's content
func (m *MemoryConnector) Push(_ context.Context, key resource.Key, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrDisconnected
	}
	if m.FailPushes > 0 {
		m.FailPushes--
		return ErrThrottled
	}
	m.tables[key] = value
	m.pushes = append(m.pushes, PushRecord{Key: key, Value: value})
	return nil
}

// Pull returns the table's content, if any
func (m *MemoryConnector) Pull(_ context.Context, key resource.Key) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, false, ErrDisconnected
	}
	value, ok := m.tables[key]
	return value, ok, nil
}

// Seed sets a table's content without recording a push
func (m *MemoryConnector) Seed(key resource.Key, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key] = value
}

// Table returns the current content of a table
func (m *MemoryConnector) Table(key resource.Key) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.tables[key]
	return value, ok
}

// Pushes returns a copy of all observed pushes
func (m *MemoryConnector) Pushes() []PushRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PushRecord(nil), m.pushes...)
}
