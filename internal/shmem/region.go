package shmem

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Region file layout: 4-byte magic, 4-byte little-endian payload length, then
// a JSON object mapping keys to raw JSON values. A zero length or unknown
// magic reads as an empty map so a freshly truncated file needs no init step.
var regionMagic = [4]byte{'H', 'R', 'D', '1'}

const headerSize = 8

// fileMap is the mmap-backed Map implementation. The per-process handle is
// serialized by mu; cross-process atomicity comes from the file lock taken
// around every load/store pair.
type fileMap struct {
	mu     sync.Mutex
	f      *os.File
	data   []byte
	size   int
	closed bool
}

// OpenOrCreate maps the shared region for namespace, creating it with the
// given size when absent. Size is only honored at creation time; later
// openers inherit the creator's size.
func OpenOrCreate(namespace string, size int) (Map, error) {
	if size <= headerSize {
		size = DefaultRegionSize
	}
	path := RegionPath(namespace)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, opError("open", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, opError("stat", err)
	}
	if fi.Size() > 0 {
		size = int(fi.Size())
	} else if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, opError("truncate", err)
	}
	data, err := mapRegion(f, size)
	if err != nil {
		_ = f.Close()
		return nil, opError("map", err)
	}
	return &fileMap{f: f, data: data, size: size}, nil
}

// RegionPath returns the on-disk location of a namespace's region file.
func RegionPath(namespace string) string {
	name := "herd-reg-" + sanitizeNamespace(namespace) + ".map"
	return filepath.Join(os.TempDir(), name)
}

func sanitizeNamespace(ns string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, ns)
}

// withLock runs fn with the region locked against other processes.
func (m *fileMap) withLock(op string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return opError(op, ErrClosed)
	}
	if err := lockFile(m.f); err != nil {
		return opError(op, err)
	}
	defer func() { _ = unlockFile(m.f) }()
	return fn()
}

// load decodes the current region contents. Corrupt headers or payloads read
// as empty rather than failing: the registry layer self-heals entry by entry,
// and a torn region must never wedge every future launch.
func (m *fileMap) load() map[string]json.RawMessage {
	if len(m.data) < headerSize {
		return map[string]json.RawMessage{}
	}
	if [4]byte(m.data[:4]) != regionMagic {
		return map[string]json.RawMessage{}
	}
	n := int(binary.LittleEndian.Uint32(m.data[4:8]))
	if n == 0 || headerSize+n > m.size {
		return map[string]json.RawMessage{}
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(m.data[headerSize:headerSize+n], &out); err != nil || out == nil {
		return map[string]json.RawMessage{}
	}
	return out
}

func (m *fileMap) store(kv map[string]json.RawMessage) error {
	payload, err := json.Marshal(kv)
	if err != nil {
		return err
	}
	if headerSize+len(payload) > m.size {
		return ErrRegionFull
	}
	copy(m.data[:4], regionMagic[:])
	binary.LittleEndian.PutUint32(m.data[4:8], uint32(len(payload)))
	copy(m.data[headerSize:], payload)
	return syncRegion(m.data)
}

func (m *fileMap) Get(key string) ([]byte, bool, error) {
	var val []byte
	var ok bool
	err := m.withLock("get", func() error {
		raw, present := m.load()[key]
		if present {
			val, ok = append([]byte(nil), raw...), true
		}
		return nil
	})
	return val, ok, err
}

func (m *fileMap) Put(key string, value []byte) error {
	return m.withLock("put", func() error {
		kv := m.load()
		kv[key] = json.RawMessage(append([]byte(nil), value...))
		return m.store(kv)
	})
}

func (m *fileMap) PutIfAbsent(key string, value []byte) (bool, error) {
	inserted := false
	err := m.withLock("put-if-absent", func() error {
		kv := m.load()
		if _, exists := kv[key]; exists {
			return nil
		}
		kv[key] = json.RawMessage(append([]byte(nil), value...))
		inserted = true
		return m.store(kv)
	})
	return inserted, err
}

func (m *fileMap) Delete(key string) ([]byte, bool, error) {
	var prior []byte
	var ok bool
	err := m.withLock("delete", func() error {
		kv := m.load()
		raw, present := kv[key]
		if !present {
			return nil
		}
		prior, ok = append([]byte(nil), raw...), true
		delete(kv, key)
		return m.store(kv)
	})
	return prior, ok, err
}

func (m *fileMap) DeleteBatch(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.withLock("delete-batch", func() error {
		kv := m.load()
		changed := false
		for _, k := range keys {
			if _, present := kv[k]; present {
				delete(kv, k)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return m.store(kv)
	})
}

func (m *fileMap) Snapshot() (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := m.withLock("snapshot", func() error {
		for k, raw := range m.load() {
			out[k] = append([]byte(nil), raw...)
		}
		return nil
	})
	return out, err
}

func (m *fileMap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	err := unmapRegion(m.data)
	m.data = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
