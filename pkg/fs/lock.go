package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// ErrWouldBlock is returned by Locker.TryLock when the lock is held by
// another process.
var ErrWouldBlock = errors.New("lock would block")

// errInodeMismatch is an internal sentinel indicating the lock file was
// replaced between open and flock. Callers should retry.
var errInodeMismatch = errors.New("inode mismatch")

// Locker provides flock(2)-based exclusive locking over a path, used by
// chroniclectl to keep a second CLI process from appending to the same
// store. The chronicle package itself has no cross-process writer
// detection: Appender.Finish's seq-vs-store-size check only sees commits
// made in its own process.
//
// flock locks an inode, not a pathname, so Locker verifies after locking
// that the path still refers to the locked inode, retrying if the lock
// file was replaced concurrently.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker over fs.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs, flock: syscall.Flock}
}

// Lock represents a held file lock. Close releases it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying file descriptor.
// Idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(lk.flock, fd, syscall.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return nil
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

// Lock acquires an exclusive lock on the file at path, blocking until
// available. The file and its parent directories are created if absent.
func (l *Locker) Lock(path string) (*Lock, error) {
	for {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, false)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if errors.Is(err, errInodeMismatch) {
			continue
		}

		return nil, err
	}
}

// TryLock attempts to acquire an exclusive lock without blocking, returning
// ErrWouldBlock if another process already holds it.
func (l *Locker) TryLock(path string) (*Lock, error) {
	file, err := l.openLockFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile: %w", err)
	}

	err = l.acquire(file, path, true)
	if err == nil {
		return &Lock{file: file, flock: l.flock}, nil
	}

	_ = file.Close()

	if errors.Is(err, errInodeMismatch) {
		return nil, fmt.Errorf("%w: lock file was replaced while acquiring lock", ErrWouldBlock)
	}

	return nil, err
}

// acquire flocks file exclusively and verifies path still refers to its
// inode. On failure the file is unlocked but not closed.
func (l *Locker) acquire(file File, path string, nonBlocking bool) error {
	fd := int(file.Fd())

	flags := syscall.LOCK_EX
	if nonBlocking {
		flags |= syscall.LOCK_NB
	}

	if err := flockRetryEINTR(l.flock, fd, flags); err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}

		return err
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(l.flock, fd, syscall.LOCK_UN)

		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}

		return fmt.Errorf("verifying inode match: %w", err)
	}

	if !match {
		_ = flockRetryEINTR(l.flock, fd, syscall.LOCK_UN)
		return errInodeMismatch
	}

	return nil
}

func (l *Locker) openLockFile(path string) (File, error) {
	f, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// inodeMatchesPath compares (dev,ino) of the open fd against the current
// file at path, guarding against a lock file replaced mid-acquisition.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *syscall.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
}

// flockRetryEINTR wraps flock, retrying on EINTR up to a bound (Go's own
// os package retries unbounded; we cap it to avoid spinning forever under
// a pathological signal storm).
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error

	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}
