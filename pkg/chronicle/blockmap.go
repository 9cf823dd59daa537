package chronicle

import (
	"os"
	"sync"
)

// Block is a pinned, memory-mapped window onto one fixed-size block of a
// BlockMap's backing file.
//
// Bytes is valid until the Block is released with [BlockMap.release]; after
// that it must not be read or written. Multiple callers may pin and hold
// the same Block concurrently (BlockMap refcounts it), and the slice
// itself is safe for concurrent reads; concurrent writers are the caller's
// responsibility (the package only ever has one active Appender).
type Block struct {
	idx   int64
	Bytes []byte
}

// blockEntry is the BlockMap-internal bookkeeping for one mapped block.
type blockEntry struct {
	data     []byte
	refcount int32
}

// BlockMap lazily maps block indices of one backing file to memory-mapped
// byte windows.
//
// acquire extends the file (zero-filled, via ftruncate) until the block is
// fully present and maps it if it has not been seen before; the address of
// a returned Block
// is stable until it is released and unmapped. BlockMap is safe for
// concurrent use by multiple goroutines; the mapped byte windows
// themselves are accessed lock-free by callers.
type BlockMap struct {
	mu        sync.Mutex
	file      *os.File
	blockSize int64
	blocks    map[int64]*blockEntry
	closed    bool
}

// OpenBlockMap opens (creating if necessary) the file at path and returns a
// BlockMap over it with the given fixed block size.
func OpenBlockMap(path string, blockSize int64) (*BlockMap, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, wrapf(ErrIo, err, "open %s", path)
	}

	return &BlockMap{
		file:      f,
		blockSize: blockSize,
		blocks:    make(map[int64]*blockEntry),
	}, nil
}

// size returns the physical length of the backing file in bytes.
func (bm *BlockMap) size() (int64, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return 0, ErrClosed
	}

	info, err := bm.file.Stat()
	if err != nil {
		return 0, wrapf(ErrIo, err, "stat")
	}

	return info.Size(), nil
}

// acquire returns a pinned Block for blockIdx, extending and mapping it on
// first use. The caller must call [BlockMap.release] exactly once when
// done with the Block.
func (bm *BlockMap) acquire(blockIdx int64) (*Block, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, ErrClosed
	}

	entry, ok := bm.blocks[blockIdx]
	if !ok {
		mapped, err := bm.mapBlockLocked(blockIdx)
		if err != nil {
			return nil, err
		}

		entry = &blockEntry{data: mapped}
		bm.blocks[blockIdx] = entry
	}

	entry.refcount++

	return &Block{idx: blockIdx, Bytes: entry.data}, nil
}

// mapBlockLocked extends the backing file so block blockIdx is fully
// present (zero-filled) and maps it. Callers must hold bm.mu.
func (bm *BlockMap) mapBlockLocked(blockIdx int64) ([]byte, error) {
	needed := (blockIdx + 1) * bm.blockSize

	info, err := bm.file.Stat()
	if err != nil {
		return nil, wrapf(ErrIo, err, "stat")
	}

	if info.Size() < needed {
		if err := bm.file.Truncate(needed); err != nil {
			return nil, wrapf(ErrIo, err, "extend to %d bytes", needed)
		}
	}

	data, err := mmapAt(int(bm.file.Fd()), blockIdx*bm.blockSize, int(bm.blockSize))
	if err != nil {
		return nil, err
	}

	return data, nil
}

// release decrements blk's refcount. Once it reaches zero the block becomes
// eligible for unmapping; this implementation unmaps eagerly rather than
// keeping an LRU of mapped-but-unpinned blocks, trading a future remap for
// simpler lifetime reasoning (acceptable: Tailer/Excerpt re-acquire blocks
// they still need on their very next step).
func (bm *BlockMap) release(blk *Block) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	entry, ok := bm.blocks[blk.idx]
	if !ok {
		return
	}

	entry.refcount--
	if entry.refcount > 0 {
		return
	}

	_ = munmapFile(entry.data)
	delete(bm.blocks, blk.idx)
}

// close unmaps all blocks and closes the file. It fails with ErrBusy if any
// block is still pinned.
func (bm *BlockMap) close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil
	}

	for _, entry := range bm.blocks {
		if entry.refcount > 0 {
			return ErrBusy
		}
	}

	for idx, entry := range bm.blocks {
		_ = munmapFile(entry.data)
		delete(bm.blocks, idx)
	}

	bm.closed = true

	if err := bm.file.Close(); err != nil {
		return wrapf(ErrIo, err, "close")
	}

	return nil
}
