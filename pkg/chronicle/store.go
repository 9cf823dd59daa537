package chronicle

import (
	"os"
	"path/filepath"
	"sync"
)

// ChronicleStore owns the two BlockMaps (".index", ".data") backing one
// base path, together with the config they were created with and the
// cached lastWrittenIndex recovered at open.
type ChronicleStore struct {
	basePath string
	cfg      Config
	lay      layout

	indexMap *BlockMap
	dataMap  *BlockMap

	mu               sync.Mutex
	lastWrittenIndex int64
	nextDataOffset   int64
	closed           bool
	appenderActive   bool
}

// Open opens or creates a store rooted at basePath, creating
// "<basePath>.index", "<basePath>.data" and "<basePath>.meta" as needed,
// and recovers lastWrittenIndex from existing file contents.
//
// Reopening a store with a Config that conflicts with the persisted
// sidecar returns ErrIncompatible. A fresh Config{} uses documented
// defaults.
func Open(basePath string, cfg Config) (*ChronicleStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(basePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrapf(ErrIo, err, "create directory %s", dir)
		}
	}

	metaPath := basePath + ".meta"

	existing, ok, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}

	if ok {
		if !existing.matches(cfg) {
			return nil, errf(ErrIncompatible, "store %s was created with a different config", basePath)
		}
	} else {
		if err := writeMeta(metaPath, metaFromConfig(cfg)); err != nil {
			return nil, err
		}
	}

	indexMap, err := OpenBlockMap(basePath+".index", cfg.IndexBlockSize)
	if err != nil {
		return nil, err
	}

	dataMap, err := OpenBlockMap(basePath+".data", cfg.DataBlockSize)
	if err != nil {
		_ = indexMap.close()
		return nil, err
	}

	s := &ChronicleStore{
		basePath: basePath,
		cfg:      cfg,
		lay:      newLayout(cfg),
		indexMap: indexMap,
		dataMap:  dataMap,
	}

	last, nextOffset, err := s.recoverLastIndex()
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.lastWrittenIndex = last
	s.nextDataOffset = nextOffset

	return s, nil
}

// LastWrittenIndex returns the cached largest committed sequence number, or
// -1 if the store is empty.
func (s *ChronicleStore) LastWrittenIndex() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastWrittenIndex
}

// Size returns LastWrittenIndex()+1, or 0 for an empty store.
func (s *ChronicleStore) Size() int64 {
	last := s.LastWrittenIndex()
	if last < 0 {
		return 0
	}

	return last + 1
}

// currentNextDataOffset returns the absolute data offset at which the next
// record must begin, kept current by Appender.commitSlot and by recovery
// at Open.
func (s *ChronicleStore) currentNextDataOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextDataOffset
}

// CreateAppender constructs the store's single writer cursor, positioned at
// the end of the log. Only one Appender may be active per ChronicleStore at
// a time within a process; a second concurrent call returns ErrBusy. This
// guard is per ChronicleStore and does not see an Appender in another
// process; neither does Appender.Finish's seq-vs-store-size check, which
// compares against this store's cached size.
func (s *ChronicleStore) CreateAppender() (*Appender, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	if s.appenderActive {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	s.appenderActive = true
	s.mu.Unlock()

	a, err := newAppender(s)
	if err != nil {
		s.mu.Lock()
		s.appenderActive = false
		s.mu.Unlock()

		return nil, err
	}

	return a, nil
}

// releaseAppender is called by Appender.Close to free the in-process
// single-writer slot.
func (s *ChronicleStore) releaseAppender() {
	s.mu.Lock()
	s.appenderActive = false
	s.mu.Unlock()
}

// CreateTailer constructs a sequential reader positioned before seq 0.
func (s *ChronicleStore) CreateTailer() (*Tailer, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	return newTailer(s), nil
}

// CreateExcerpt constructs a random-access reader with no current
// position.
func (s *ChronicleStore) CreateExcerpt() (*Excerpt, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	return newExcerpt(s), nil
}

func (s *ChronicleStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Close closes both BlockMaps. It fails with ErrBusy if any block is still
// pinned by an outstanding reader or writer.
func (s *ChronicleStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errIdx := s.indexMap.close()
	errData := s.dataMap.close()

	if errIdx != nil {
		return errIdx
	}

	return errData
}

// Clear deletes both backing files and the metadata sidecar. The store
// must already be closed.
func (s *ChronicleStore) Clear() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if !closed {
		return errf(ErrInvalidInput, "store must be closed before Clear")
	}

	for _, suffix := range []string{".index", ".data", ".meta"} {
		if err := os.Remove(s.basePath + suffix); err != nil && !os.IsNotExist(err) {
			return wrapf(ErrIo, err, "remove %s", s.basePath+suffix)
		}
	}

	return nil
}

// recoverLastIndex scans index blocks from the last one present down to
// block 0, looking for the highest committed slot, and returns alongside
// it the absolute data offset the next write must resume at.
func (s *ChronicleStore) recoverLastIndex() (int64, int64, error) {
	size, err := s.indexMap.size()
	if err != nil {
		return 0, 0, err
	}

	if size == 0 {
		return -1, 0, nil
	}

	numBlocks := size / s.cfg.IndexBlockSize

	for b := numBlocks - 1; b >= 0; b-- {
		seq, nextOffset, ok, err := s.recoverBlock(b)
		if err != nil {
			return 0, 0, err
		}

		if ok {
			return seq, nextOffset, nil
		}
		// block never used; continue scanning toward block 0.
	}

	return -1, 0, nil
}

// recoverBlock scans index block b and returns (seq, nextOffset, true, nil)
// if it finds the last committed slot, or (0, 0, false, nil) if the block
// was never used and the caller should continue to block b-1. An unused
// block 0 yields (-1, 0, true, nil): the store is empty.
func (s *ChronicleStore) recoverBlock(b int64) (int64, int64, bool, error) {
	blk, err := s.indexMap.acquire(b)
	if err != nil {
		return 0, 0, false, err
	}
	defer s.indexMap.release(blk)

	data := blk.Bytes
	linesPerBlock := s.lay.linesPerBlock()

	lastActiveLine := int64(-1)

	for line := int64(0); line < linesPerBlock; line++ {
		off := line * s.cfg.CacheLineSize
		base := atomicLoadInt64(data[off : off+8])

		if base != 0 {
			lastActiveLine = line

			continue
		}

		// Absolute data offset 0 is both the "line never opened" sentinel
		// and the genuine base of the very first line ever written (block
		// 0, line 0). Disambiguate using slot 0 directly: if it is
		// nonzero, this line does hold data.
		if b == 0 && line == 0 {
			slot0 := atomicLoadInt32(data[off+8 : off+12])
			if slot0 != 0 {
				lastActiveLine = line

				continue
			}
		}

		// Lines are opened strictly in order by a single writer, so once
		// one is found unopened every later line in this block must be
		// unopened too. A non-zero base past this point cannot arise from
		// normal operation and is treated as corruption, not as an
		// ambiguity recovery must paper over.
		for rest := line + 1; rest < linesPerBlock; rest++ {
			restOff := rest * s.cfg.CacheLineSize
			if atomicLoadInt64(data[restOff:restOff+8]) != 0 {
				return 0, 0, false, errf(ErrCorrupt, "index block %d: line %d has a base after unopened line %d", b, rest, line)
			}
		}

		break
	}

	if lastActiveLine == -1 {
		if b == 0 {
			return -1, 0, true, nil
		}

		return 0, 0, false, nil
	}

	// A single writer fills slots left to right, so a committed slot after
	// an unwritten one in the same line cannot arise from normal operation.
	lastLineOff := lastActiveLine * s.cfg.CacheLineSize
	sawZero := false

	for slot := int64(0); slot < s.lay.epl; slot++ {
		off := lastLineOff + 8 + slot*4
		if atomicLoadInt32(data[off:off+4]) == 0 {
			sawZero = true
		} else if sawZero {
			return 0, 0, false, errf(ErrCorrupt, "index block %d: line %d has a committed slot after an unwritten one", b, lastActiveLine)
		}
	}

	seq, nextOffset, found := s.lastSlotInLine(data, b, lastActiveLine)
	if found {
		return seq, nextOffset, true, nil
	}

	if lastActiveLine == 0 {
		return 0, 0, false, errf(ErrCorrupt, "index block %d: active line has no committed slot", b)
	}

	seq, nextOffset, found = s.lastSlotInLine(data, b, lastActiveLine-1)
	if !found {
		return 0, 0, false, errf(ErrCorrupt, "index block %d: no committed slot found", b)
	}

	return seq, nextOffset, true, nil
}

// lastSlotInLine scans a line's slots left to right, returning the
// sequence number of the last committed one together with the absolute
// data offset immediately following it. A positive slot value is an
// offset relative to the line's base; a negative one is a padding length
// relative to wherever the running position already was.
func (s *ChronicleStore) lastSlotInLine(data []byte, block, line int64) (int64, int64, bool) {
	lineOff := line * s.cfg.CacheLineSize
	base := atomicLoadInt64(data[lineOff : lineOff+8])

	pos := base
	slotK := int64(-1)

	for slot := int64(0); slot < s.lay.epl; slot++ {
		off := lineOff + 8 + slot*4

		v := atomicLoadInt32(data[off : off+4])
		if v == 0 {
			break
		}

		if v > 0 {
			pos = base + int64(v)
		} else {
			pos += int64(-v)
		}

		slotK = slot
	}

	if slotK == -1 {
		return 0, 0, false
	}

	return block*s.lay.epb + line*s.lay.epl + slotK, pos, true
}
