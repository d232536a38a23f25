package pebblestore

import (
	"bytes"
	"sort"
)

// MockBackend is an in-memory Backend for unit tests that need a Backend
// without linking a real Pebble instance, adapted from the teacher's
// db.MockStore.
type MockBackend struct {
	entries map[string][]byte
	// Finished records the sorted keys as of Finish, for test assertions.
	Finished []string
}

// compile-time interface check.
var _ Backend = (*MockBackend)(nil)

// NewMockBackend returns an empty MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{entries: make(map[string][]byte)}
}

// Put implements Backend.
func (m *MockBackend) Put(key, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[string(key)] = v
	return nil
}

// Finish implements Backend: it snapshots the keys in sorted order into
// m.Finished. There is nothing to flush or compact for an in-memory map.
func (m *MockBackend) Finish() error {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	m.Finished = keys
	return nil
}

// Get returns the value stored for key, for test assertions.
func (m *MockBackend) Get(key []byte) ([]byte, bool) {
	v, ok := m.entries[string(key)]
	return v, ok
}

// SortedKeys returns every staged key in unsigned lexicographic order,
// independent of whether Finish has been called yet.
func (m *MockBackend) SortedKeys() [][]byte {
	keys := make([][]byte, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}
