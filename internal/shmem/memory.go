package shmem

import "sync"

// Memory is an in-process Map used by unit tests and as a stand-in wherever a
// shared region is not wanted. It honors the same contracts as the file
// region minus cross-process visibility.
type Memory struct {
	mu     sync.Mutex
	kv     map[string][]byte
	closed bool
}

// NewMemory returns an empty in-process map.
func NewMemory() *Memory {
	return &Memory{kv: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, opError("get", ErrClosed)
	}
	v, ok := m.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return opError("put", ErrClosed)
	}
	m.kv[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) PutIfAbsent(key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, opError("put-if-absent", ErrClosed)
	}
	if _, exists := m.kv[key]; exists {
		return false, nil
	}
	m.kv[key] = append([]byte(nil), value...)
	return true, nil
}

func (m *Memory) Delete(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, opError("delete", ErrClosed)
	}
	v, ok := m.kv[key]
	if !ok {
		return nil, false, nil
	}
	delete(m.kv, key)
	return v, true, nil
}

func (m *Memory) DeleteBatch(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return opError("delete-batch", ErrClosed)
	}
	for _, k := range keys {
		delete(m.kv, k)
	}
	return nil
}

func (m *Memory) Snapshot() (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, opError("snapshot", ErrClosed)
	}
	out := make(map[string][]byte, len(m.kv))
	for k, v := range m.kv {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
