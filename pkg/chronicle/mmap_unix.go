//go:build unix

package chronicle

import (
	"golang.org/x/sys/unix"
)

// mmapAt maps [offset, offset+length) of fd as a shared read/write mapping.
// offset must be a multiple of the platform page size; every caller in this
// package maps at multiples of a configured block size, which is enforced
// to be a power of two no smaller than 4 KiB.
func mmapAt(fd int, offset int64, length int) ([]byte, error) {
	data, err := unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, wrapf(ErrIo, err, "mmap offset=%d length=%d", offset, length)
	}

	return data, nil
}

func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return wrapf(ErrIo, err, "munmap")
	}

	return nil
}

// msyncRange flushes [offset, offset+length) of a mapping to its backing
// file, blocking until complete.
func msyncRange(data []byte, offset, length int) error {
	if length == 0 {
		return nil
	}

	if err := unix.Msync(data[offset:offset+length], unix.MS_SYNC); err != nil {
		return wrapf(ErrIo, err, "msync")
	}

	return nil
}
