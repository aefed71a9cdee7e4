// Package shmem provides the cross-process map primitive backing the task
// registry: a fixed-size memory-mapped file region shared by unrelated OS
// processes, with every operation bracketed by an exclusive advisory lock.
// The region itself is not safe for unsynchronized access; everything above
// this package talks to the Map interface and can be tested against the
// in-process fake in memory.go.
package shmem

import (
	"errors"
	"fmt"
)

// DefaultRegionSize is the size of a freshly created region file.
const DefaultRegionSize = 1 << 20

var (
	// ErrRegionFull is returned when an encoded snapshot no longer fits in
	// the fixed-size region.
	ErrRegionFull = errors.New("shared region full")
	// ErrClosed is returned for operations on a closed map handle.
	ErrClosed = errors.New("shared map closed")
)

// Map is a string-keyed byte map shared across process boundaries.
// Implementations must make each operation atomic with respect to other
// processes holding a handle onto the same namespace. Values must be
// self-contained JSON documents; the file region stores the whole map as one
// JSON object.
type Map interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool, error)
	// Put stores value under key, overwriting any previous value.
	Put(key string, value []byte) error
	// PutIfAbsent stores value only when key is not present; it reports
	// whether the insert happened.
	PutIfAbsent(key string, value []byte) (bool, error)
	// Delete removes key and returns the prior value when present.
	// A missing key is not an error.
	Delete(key string) ([]byte, bool, error)
	// DeleteBatch removes all given keys in one atomic operation.
	DeleteBatch(keys []string) error
	// Snapshot returns a copy of the whole map as visible at call time.
	Snapshot() (map[string][]byte, error)
	Close() error
}

func opError(op string, err error) error {
	return fmt.Errorf("shmem %s: %w", op, err)
}
