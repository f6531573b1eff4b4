package driver

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    string
	deadline time.Time
}

func (mi memoryItem) expired(now time.Time) bool {
	return !mi.deadline.IsZero() && !now.Before(mi.deadline)
}

// MemoryKV process local KeyValueDB, values are lost on restart
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

var _ KeyValueDB = &MemoryKV{}

// NewMemoryKV create an empty in-memory store
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Set implement KeyValueDB
func (m *MemoryKV) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	item := memoryItem{value: value}
	if expiration > 0 {
		item.deadline = m.now().Add(expiration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		return ErrClosed
	}
	m.items[key] = item
	return nil
}

// Get implement KeyValueDB
func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.items == nil {
		return "", ErrClosed
	}
	item, ok := m.items[key]
	if !ok || item.expired(m.now()) {
		return "", ErrKeyNotFound
	}
	return item.value, nil
}

// Exists implement KeyValueDB
func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

// Ping implement KeyValueDB
func (m *MemoryKV) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.items == nil {
		return ErrClosed
	}
	return nil
}

// Close implement KeyValueDB
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
	return nil
}
