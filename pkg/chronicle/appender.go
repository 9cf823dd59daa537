package chronicle

import "math"

// Appender is the single-writer cursor over a ChronicleStore. Exactly one
// Appender should be active against a store at a time;
// ChronicleStore.CreateAppender enforces this in-process, and Finish
// re-checks that its own sequence number matches the store's cached size.
// That cached size is maintained by this process only, so records
// committed by another process are not detected.
type Appender struct {
	store *ChronicleStore
	cfg   Config
	lay   layout

	curIndexBlockIdx int64
	curIndexBlock    *Block
	curIndexAddr     int64 // byte offset within curIndexBlock

	curDataBlockIdx int64
	curDataBlock    *Block
	curDataAddr     int64 // byte offset within curDataBlock

	baseDataOffset int64 // absolute data offset of the current line's base
	seq            int64

	hasPending      bool
	pendingCapacity int64

	closed bool
}

func newAppender(store *ChronicleStore) (*Appender, error) {
	a := &Appender{store: store, cfg: store.cfg, lay: store.lay}

	if err := a.seekToEnd(); err != nil {
		return nil, err
	}

	return a, nil
}

// seekToEnd positions the appender at store.Size(), resolving the index
// and data cursor state from whatever is already committed on disk.
func (a *Appender) seekToEnd() error {
	seq := a.store.Size()
	addr := a.lay.resolve(seq)

	idxBlk, err := a.store.indexMap.acquire(addr.block)
	if err != nil {
		return err
	}

	a.curIndexBlock = idxBlk
	a.curIndexBlockIdx = addr.block

	lineOff := addr.line * a.cfg.CacheLineSize
	base := atomicLoadInt64(idxBlk.Bytes[lineOff : lineOff+8])

	nextAbs := a.store.currentNextDataOffset()

	if base != 0 || addr.slot != 0 {
		a.curIndexAddr = lineOff + 8 + addr.slot*4
		a.baseDataOffset = base
	} else {
		a.curIndexAddr = lineOff
		a.baseDataOffset = nextAbs
	}

	a.curDataBlockIdx = nextAbs / a.cfg.DataBlockSize
	dataOffsetInBlock := nextAbs % a.cfg.DataBlockSize

	dataBlk, err := a.store.dataMap.acquire(a.curDataBlockIdx)
	if err != nil {
		a.store.indexMap.release(idxBlk)
		return err
	}

	a.curDataBlock = dataBlk
	a.curDataAddr = dataOffsetInBlock
	a.seq = seq

	return nil
}

// StartExcerpt reserves capacity bytes of the current data block for a new
// record and returns a mutable view onto them. The caller must fill the
// slice and call Finish before starting another excerpt.
func (a *Appender) StartExcerpt(capacity int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}

	if a.hasPending {
		return nil, errf(ErrInvalidInput, "StartExcerpt called without a matching Finish")
	}

	if capacity <= 0 {
		return nil, errf(ErrInvalidInput, "capacity %d must be positive", capacity)
	}

	if int64(capacity) >= a.cfg.DataBlockSize {
		return nil, errf(ErrCapacityTooLarge, "capacity %d >= data block size %d", capacity, a.cfg.DataBlockSize)
	}

	if a.curDataAddr+int64(capacity) > a.cfg.DataBlockSize {
		if err := a.rollDataBlock(); err != nil {
			return nil, err
		}
	}

	if err := a.ensureIndexLine(); err != nil {
		return nil, err
	}

	buf := a.curDataBlock.Bytes[a.curDataAddr : a.curDataAddr+int64(capacity)]
	a.pendingCapacity = int64(capacity)
	a.hasPending = true

	return buf, nil
}

// Finish commits the record reserved by the most recent StartExcerpt call:
// it release-stores the record's end offset into the current index slot,
// the single event that makes the record visible to readers.
func (a *Appender) Finish() error {
	if a.closed {
		return ErrClosed
	}

	if !a.hasPending {
		return errf(ErrInvalidInput, "Finish called without a matching StartExcerpt")
	}

	if a.seq != a.store.Size() {
		return errf(ErrConcurrentWriter, "appender seq %d, store size %d", a.seq, a.store.Size())
	}

	newDataAddr := a.curDataAddr + a.pendingCapacity
	absEnd := a.curDataBlockIdx*a.cfg.DataBlockSize + newDataAddr
	relOff := absEnd - a.baseDataOffset

	if relOff <= 0 || relOff > math.MaxInt32 {
		return errf(ErrCorrupt, "computed record end offset %d out of range", relOff)
	}

	if err := a.commitSlot(int32(relOff), absEnd); err != nil {
		return err
	}

	a.curDataAddr = newDataAddr
	a.pendingCapacity = 0
	a.hasPending = false

	if a.cfg.SynchronousMode {
		if err := msyncRange(a.curDataBlock.Bytes, 0, int(a.cfg.DataBlockSize)); err != nil {
			return err
		}

		if err := msyncRange(a.curIndexBlock.Bytes, 0, int(a.cfg.IndexBlockSize)); err != nil {
			return err
		}
	}

	return nil
}

// AddPaddedEntry force-rolls the current data block, emitting a padding
// entry and advancing seq by one, without requiring a pending StartExcerpt.
func (a *Appender) AddPaddedEntry() error {
	if a.closed {
		return ErrClosed
	}

	if a.hasPending {
		return errf(ErrInvalidInput, "cannot pad while an excerpt is open")
	}

	return a.rollDataBlock()
}

// Close releases the appender's pinned blocks and frees the store's
// single-writer slot. It does not flush pending writes; call Finish first.
func (a *Appender) Close() error {
	if a.closed {
		return nil
	}

	a.closed = true

	if a.curIndexBlock != nil {
		a.store.indexMap.release(a.curIndexBlock)
	}

	if a.curDataBlock != nil {
		a.store.dataMap.release(a.curDataBlock)
	}

	a.store.releaseAppender()

	return nil
}

// rollDataBlock emits a padding entry for the unused tail of the current
// data block (if any) and advances to the next one.
func (a *Appender) rollDataBlock() error {
	if err := a.ensureIndexLine(); err != nil {
		return err
	}

	// The padding length is simply the unused tail of the current data
	// block; it is not expressed relative to the line's base (unlike a
	// regular record's offset), since a negative slot value is a literal
	// byte length, not a cumulative delta.
	padSize := a.cfg.DataBlockSize - a.curDataAddr

	if padSize > 0 {
		if padSize > math.MaxInt32 {
			return errf(ErrCorrupt, "padding size %d exceeds slot range", padSize)
		}

		nextAbs := (a.curDataBlockIdx + 1) * a.cfg.DataBlockSize

		if err := a.commitSlot(int32(-padSize), nextAbs); err != nil {
			return err
		}
	}

	return a.advanceDataBlock()
}

// commitSlot writes value into the current index slot (release semantics),
// advances the cursor, and opens the next line's base eagerly when room
// permits; a new line's base must become visible before any slot that
// references it. nextAbsDataPos is the absolute
// data offset the cursor will occupy once the caller finishes advancing it
// (the record's end, or the next data block's start for a padding commit);
// it is the authoritative value for both the eager new line base and the
// store's cached recovery position, since it cannot be reconstructed from
// value alone once padding entries are involved.
func (a *Appender) commitSlot(value int32, nextAbsDataPos int64) error {
	if err := a.ensureIndexLine(); err != nil {
		return err
	}

	slotOff := a.curIndexAddr
	atomicStoreInt32(a.curIndexBlock.Bytes[slotOff:slotOff+4], value)

	a.curIndexAddr += 4
	a.seq++

	a.store.mu.Lock()
	a.store.lastWrittenIndex = a.seq - 1
	a.store.nextDataOffset = nextAbsDataPos
	a.store.mu.Unlock()

	if a.curIndexAddr%a.cfg.CacheLineSize == 0 && a.curIndexAddr < a.cfg.IndexBlockSize {
		atomicStoreInt64(a.curIndexBlock.Bytes[a.curIndexAddr:a.curIndexAddr+8], nextAbsDataPos)
		a.baseDataOffset = nextAbsDataPos
		a.curIndexAddr += 8
	}

	return nil
}

// ensureIndexLine opens the line at curIndexAddr if it has not been opened
// yet, acquiring the next index block first if curIndexAddr has run past
// the end of the current one.
func (a *Appender) ensureIndexLine() error {
	rel := a.curIndexAddr % a.cfg.CacheLineSize

	if rel == 4 {
		return errf(ErrCorrupt, "index cursor at invalid offset (mod cache line == 4)")
	}

	if rel != 0 {
		return nil
	}

	if a.curIndexAddr >= a.cfg.IndexBlockSize {
		if err := a.advanceIndexBlock(); err != nil {
			return err
		}

		a.curIndexAddr = 0
	}

	absDataAddr := a.curDataBlockIdx*a.cfg.DataBlockSize + a.curDataAddr
	atomicStoreInt64(a.curIndexBlock.Bytes[a.curIndexAddr:a.curIndexAddr+8], absDataAddr)
	a.baseDataOffset = absDataAddr
	a.curIndexAddr += 8

	return nil
}

func (a *Appender) advanceDataBlock() error {
	a.store.dataMap.release(a.curDataBlock)
	a.curDataBlockIdx++

	blk, err := a.store.dataMap.acquire(a.curDataBlockIdx)
	if err != nil {
		return err
	}

	a.curDataBlock = blk
	a.curDataAddr = 0

	return nil
}

func (a *Appender) advanceIndexBlock() error {
	a.store.indexMap.release(a.curIndexBlock)
	a.curIndexBlockIdx++

	blk, err := a.store.indexMap.acquire(a.curIndexBlockIdx)
	if err != nil {
		return err
	}

	a.curIndexBlock = blk

	return nil
}
