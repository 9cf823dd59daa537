package chronicle

import "errors"

// Sentinel errors returned by chronicle operations.
//
// Callers should use [errors.Is] to check error kinds:
//
//	if errors.Is(err, chronicle.ErrCorrupt) {
//	    store.Close()
//	    os.RemoveAll(basePath + ".index")
//	    // ... recreate
//	}
var (
	// ErrIo indicates an underlying file, mmap, or extend failure.
	//
	// The component that returned it is left unusable; reconstruct it.
	ErrIo = errors.New("chronicle: io")

	// ErrClosed indicates an operation was attempted after Close.
	ErrClosed = errors.New("chronicle: closed")

	// ErrCapacityTooLarge indicates StartExcerpt was called with a capacity
	// that does not fit within a single data block.
	ErrCapacityTooLarge = errors.New("chronicle: capacity too large")

	// ErrConcurrentWriter indicates Appender.Finish detected that another
	// writer committed a record in the meantime.
	ErrConcurrentWriter = errors.New("chronicle: concurrent writer")

	// ErrCorrupt indicates recovery or a reader could not make sense of the
	// index/data files. Rebuild-class: delete and recreate.
	ErrCorrupt = errors.New("chronicle: corrupt")

	// ErrIncompatible indicates the store's persisted metadata does not
	// match the requested Config. Rebuild-class.
	ErrIncompatible = errors.New("chronicle: incompatible")

	// ErrBusy indicates a conflicting operation is in progress: a second
	// Appender requested on the same store, or Close while blocks are still
	// pinned. Transient.
	ErrBusy = errors.New("chronicle: busy")

	// ErrInvalidInput indicates invalid arguments or configuration.
	ErrInvalidInput = errors.New("chronicle: invalid input")
)
