//go:build !windows

package shmem

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapRegion(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func syncRegion(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

func unmapRegion(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

// lockFile takes an exclusive advisory lock; it blocks until the holder in
// another process releases it.
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
